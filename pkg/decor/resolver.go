package decor

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"threadlens/pkg/model"
	"threadlens/pkg/objcache"
)

// ChatClient is the slice of the workspace API the pipeline needs.
type ChatClient interface {
	GetMessage(ctx context.Context, channelID, ts string) (model.Message, error)
	GetThread(ctx context.Context, channelID, rootTS string) (model.Thread, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetChannel(ctx context.Context, channelID string) (model.Channel, error)
}

// TrackerClient is the slice of the tracker API the pipeline needs.
type TrackerClient interface {
	GetIssue(ctx context.Context, identifier string) (model.Issue, error)
	CreateComment(ctx context.Context, issueID, body string) (model.TrackerComment, error)
}

// ErrTrackerDisabled is returned for issue operations when no tracker
// client is configured.
var ErrTrackerDisabled = errors.New("tracker not configured")

// Resolver answers object lookups from the cache first and the clients
// second. Concurrent misses for the same key are coalesced so one fetch
// serves all waiters; without coalescing the duplicate writes would still
// be harmless, the values being identical.
type Resolver struct {
	chat    ChatClient
	tracker TrackerClient
	cache   *objcache.Cache
	group   singleflight.Group
	log     *zap.SugaredLogger
}

// NewResolver creates a resolver. tracker may be nil when issue lookups
// are not configured.
func NewResolver(chat ChatClient, tracker TrackerClient, cache *objcache.Cache, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{chat: chat, tracker: tracker, cache: cache, log: log}
}

// HasTracker reports whether issue lookups are available.
func (r *Resolver) HasTracker() bool {
	return r.tracker != nil
}

// Cache exposes the underlying cache bundle for the status surface and the
// clear-cache command.
func (r *Resolver) Cache() *objcache.Cache {
	return r.cache
}

// Message resolves a single message by channel and timestamp.
func (r *Resolver) Message(ctx context.Context, channelID, ts string) (model.Message, error) {
	key := objcache.MessageKey(channelID, ts)
	if m, ok := r.cache.Messages.Get(key); ok {
		return m, nil
	}
	v, err, _ := r.group.Do("msg:"+key, func() (any, error) {
		if m, ok := r.cache.Messages.Get(key); ok {
			return m, nil
		}
		m, err := r.chat.GetMessage(ctx, channelID, ts)
		if err != nil {
			return nil, err
		}
		r.cache.Messages.Set(key, m)
		return m, nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return v.(model.Message), nil
}

// Thread resolves a thread by its root timestamp.
func (r *Resolver) Thread(ctx context.Context, channelID, rootTS string) (model.Thread, error) {
	if t, ok := r.cache.Threads.Get(rootTS); ok {
		return t, nil
	}
	v, err, _ := r.group.Do("thread:"+rootTS, func() (any, error) {
		if t, ok := r.cache.Threads.Get(rootTS); ok {
			return t, nil
		}
		t, err := r.chat.GetThread(ctx, channelID, rootTS)
		if err != nil {
			return nil, err
		}
		r.cache.Threads.Set(rootTS, t)
		return t, nil
	})
	if err != nil {
		return model.Thread{}, err
	}
	return v.(model.Thread), nil
}

// User resolves a workspace member by ID.
func (r *Resolver) User(ctx context.Context, userID string) (model.User, error) {
	if u, ok := r.cache.Users.Get(userID); ok {
		return u, nil
	}
	v, err, _ := r.group.Do("user:"+userID, func() (any, error) {
		if u, ok := r.cache.Users.Get(userID); ok {
			return u, nil
		}
		u, err := r.chat.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.cache.Users.Set(userID, u)
		return u, nil
	})
	if err != nil {
		return model.User{}, err
	}
	return v.(model.User), nil
}

// Channel resolves a conversation by ID.
func (r *Resolver) Channel(ctx context.Context, channelID string) (model.Channel, error) {
	if c, ok := r.cache.Channels.Get(channelID); ok {
		return c, nil
	}
	v, err, _ := r.group.Do("channel:"+channelID, func() (any, error) {
		if c, ok := r.cache.Channels.Get(channelID); ok {
			return c, nil
		}
		c, err := r.chat.GetChannel(ctx, channelID)
		if err != nil {
			return nil, err
		}
		r.cache.Channels.Set(channelID, c)
		return c, nil
	})
	if err != nil {
		return model.Channel{}, err
	}
	return v.(model.Channel), nil
}

// Issue resolves a tracker issue by its human identifier, the one key the
// issue store uses.
func (r *Resolver) Issue(ctx context.Context, identifier string) (model.Issue, error) {
	if r.tracker == nil {
		return model.Issue{}, ErrTrackerDisabled
	}
	if iss, ok := r.cache.Issues.Get(identifier); ok {
		return iss, nil
	}
	v, err, _ := r.group.Do("issue:"+identifier, func() (any, error) {
		if iss, ok := r.cache.Issues.Get(identifier); ok {
			return iss, nil
		}
		iss, err := r.tracker.GetIssue(ctx, identifier)
		if err != nil {
			return nil, err
		}
		r.cache.Issues.Set(identifier, iss)
		return iss, nil
	})
	if err != nil {
		return model.Issue{}, err
	}
	return v.(model.Issue), nil
}

// CreateComment posts a comment through the tracker. Never retried; the
// caller sees exactly what the tracker answered.
func (r *Resolver) CreateComment(ctx context.Context, issueID, body string) (model.TrackerComment, error) {
	if r.tracker == nil {
		return model.TrackerComment{}, ErrTrackerDisabled
	}
	return r.tracker.CreateComment(ctx, issueID, body)
}
