// Package chat implements the read-only workspace messaging API client.
// Every response arrives in an envelope with an "ok" flag; ok=false carries
// a short error code that maps onto the shared failure taxonomy.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"threadlens/pkg/model"
	"threadlens/pkg/remote"
)

// DefaultBaseURL is the hosted workspace API root.
const DefaultBaseURL = "https://slack.com/api"

// defaultTimeout bounds a single API round trip.
const defaultTimeout = 15 * time.Second

// repliesLimit caps how many thread replies a single fetch brings back.
// The reply count shown inline comes from the parent, not this list.
const repliesLimit = 50

// Client talks to the workspace messaging API. It is stateless apart from
// the token and safe for concurrent use. All operations are reads and are
// safe to retry; the client itself never retries.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client for the given API root and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type historyResponse struct {
	envelope
	Messages []model.Message `json:"messages"`
}

type userResponse struct {
	envelope
	User userWire `json:"user"`
}

type channelResponse struct {
	envelope
	Channel model.Channel `json:"channel"`
}

// userWire carries the nested profile shape the API uses for users.
type userWire struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Profile  struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
		Image72     string `json:"image_72"`
	} `json:"profile"`
}

func (w userWire) toModel() model.User {
	u := model.User{
		ID:          w.ID,
		Name:        w.Name,
		RealName:    w.RealName,
		DisplayName: w.Profile.DisplayName,
		AvatarURL:   w.Profile.Image72,
	}
	if u.RealName == "" {
		u.RealName = w.Profile.RealName
	}
	return u
}

// GetMessage fetches the message at ts in the channel. The API answers a
// point-in-time history lookup with at most one element: the message at the
// timestamp, or its nearest predecessor. Callers treat that element as the
// target; an empty list is a not-found.
func (c *Client) GetMessage(ctx context.Context, channelID, ts string) (model.Message, error) {
	const op = "chat.GetMessage"
	q := url.Values{}
	q.Set("channel", channelID)
	q.Set("latest", ts)
	q.Set("inclusive", "true")
	q.Set("limit", "1")

	var resp historyResponse
	if err := c.get(ctx, op, "conversations.history", q, &resp); err != nil {
		return model.Message{}, err
	}
	if len(resp.Messages) == 0 {
		return model.Message{}, remote.Errorf(remote.KindNotFound, op, "no message at %s in %s", ts, channelID)
	}
	msg := resp.Messages[0]
	msg.ChannelID = channelID
	return msg, nil
}

// GetThread fetches a thread by its root timestamp. The first element of
// the reply listing is the root itself; the rest are replies in order.
func (c *Client) GetThread(ctx context.Context, channelID, rootTS string) (model.Thread, error) {
	const op = "chat.GetThread"
	q := url.Values{}
	q.Set("channel", channelID)
	q.Set("ts", rootTS)
	q.Set("limit", fmt.Sprintf("%d", repliesLimit))

	var resp historyResponse
	if err := c.get(ctx, op, "conversations.replies", q, &resp); err != nil {
		return model.Thread{}, err
	}
	if len(resp.Messages) == 0 {
		return model.Thread{}, remote.Errorf(remote.KindNotFound, op, "no thread at %s in %s", rootTS, channelID)
	}

	parent := resp.Messages[0]
	parent.ChannelID = channelID
	thread := model.Thread{Parent: parent}
	for _, m := range resp.Messages[1:] {
		m.ChannelID = channelID
		thread.Replies = append(thread.Replies, m)
	}
	return thread, nil
}

// GetUser fetches a workspace member by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (model.User, error) {
	const op = "chat.GetUser"
	q := url.Values{}
	q.Set("user", userID)

	var resp userResponse
	if err := c.get(ctx, op, "users.info", q, &resp); err != nil {
		return model.User{}, err
	}
	return resp.User.toModel(), nil
}

// GetChannel fetches a conversation's metadata by ID.
func (c *Client) GetChannel(ctx context.Context, channelID string) (model.Channel, error) {
	const op = "chat.GetChannel"
	q := url.Values{}
	q.Set("channel", channelID)

	var resp channelResponse
	if err := c.get(ctx, op, "conversations.info", q, &resp); err != nil {
		return model.Channel{}, err
	}
	return resp.Channel, nil
}

// get performs one GET against method with the query, decodes into out, and
// normalizes every failure into a *remote.APIError. out must embed envelope.
func (c *Client) get(ctx context.Context, op, method string, q url.Values, out interface {
	env() envelope
}) error {
	u := c.baseURL + "/" + method
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return remote.Wrap(remote.KindNetwork, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(remote.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return remote.Errorf(remote.KindUnauthorized, op, "status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return remote.Errorf(remote.KindNetwork, op, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.Wrap(remote.KindMalformed, op, err)
	}

	if env := out.env(); !env.OK {
		kind := kindForAPIError(env.Error)
		c.log.Debugw("workspace API refused request", "op", op, "error", env.Error)
		return remote.Errorf(kind, op, "%s", env.Error)
	}
	return nil
}

func (e envelope) env() envelope { return e }

// kindForAPIError maps the envelope's error code onto the taxonomy.
func kindForAPIError(code string) remote.ErrorKind {
	switch code {
	case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive", "missing_scope":
		return remote.KindUnauthorized
	}
	if strings.HasSuffix(code, "_not_found") {
		return remote.KindNotFound
	}
	return remote.KindNetwork
}
