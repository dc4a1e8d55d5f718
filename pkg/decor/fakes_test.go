package decor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"threadlens/pkg/config"
	"threadlens/pkg/model"
	"threadlens/pkg/objcache"
	"threadlens/pkg/permalink"
	"threadlens/pkg/remote"
)

// Canonical fixture link. The timestamp decodes to 2009-02-13 23:31:30 UTC.
const (
	testHost    = "example-chat.com"
	testURL     = "https://ws.example-chat.com/archives/C1234ABCD/p1234567890123456"
	testChannel = "C1234ABCD"
	testTS      = "1234567890.123456"
)

// testNow sits ten minutes after the canonical message so it always lands
// in the today bucket regardless of the local zone.
var testNow = mustTime(testTS).Add(10 * time.Minute)

func mustTime(ts string) time.Time {
	var secs, micros int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &secs, &micros); err != nil {
		panic(err)
	}
	return time.Unix(secs, micros*1000)
}

// fakeChat serves fixture objects from maps, counting calls per operation.
// An optional gate holds every call open until released.
type fakeChat struct {
	mu       sync.Mutex
	messages map[string]model.Message
	threads  map[string]model.Thread
	users    map[string]model.User
	channels map[string]model.Channel
	errs     map[string]error
	calls    map[string]int
	gate     chan struct{}
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		messages: make(map[string]model.Message),
		threads:  make(map[string]model.Thread),
		users:    make(map[string]model.User),
		channels: make(map[string]model.Channel),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeChat) holdCalls() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeChat) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return &remote.APIError{Kind: remote.KindNetwork, Op: op, Err: ctx.Err()}
	}
}

func (f *fakeChat) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeChat) failWith(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeChat) GetMessage(ctx context.Context, channelID, ts string) (model.Message, error) {
	if err := f.enter(ctx, "message"); err != nil {
		return model.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs["message:"+channelID+":"+ts]; ok {
		return model.Message{}, err
	}
	m, ok := f.messages[channelID+":"+ts]
	if !ok {
		return model.Message{}, &remote.APIError{Kind: remote.KindNotFound, Op: "conversations.history", Message: "message_not_found"}
	}
	return m, nil
}

func (f *fakeChat) GetThread(ctx context.Context, channelID, rootTS string) (model.Thread, error) {
	if err := f.enter(ctx, "thread"); err != nil {
		return model.Thread{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs["thread:"+rootTS]; ok {
		return model.Thread{}, err
	}
	th, ok := f.threads[rootTS]
	if !ok {
		return model.Thread{}, &remote.APIError{Kind: remote.KindNotFound, Op: "conversations.replies", Message: "thread_not_found"}
	}
	return th, nil
}

func (f *fakeChat) GetUser(ctx context.Context, userID string) (model.User, error) {
	if err := f.enter(ctx, "user"); err != nil {
		return model.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs["user:"+userID]; ok {
		return model.User{}, err
	}
	u, ok := f.users[userID]
	if !ok {
		return model.User{}, &remote.APIError{Kind: remote.KindNotFound, Op: "users.info", Message: "user_not_found"}
	}
	return u, nil
}

func (f *fakeChat) GetChannel(ctx context.Context, channelID string) (model.Channel, error) {
	if err := f.enter(ctx, "channel"); err != nil {
		return model.Channel{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs["channel:"+channelID]; ok {
		return model.Channel{}, err
	}
	c, ok := f.channels[channelID]
	if !ok {
		return model.Channel{}, &remote.APIError{Kind: remote.KindNotFound, Op: "conversations.info", Message: "channel_not_found"}
	}
	return c, nil
}

// fakeTracker serves issues from a map and records created comments.
type fakeTracker struct {
	mu       sync.Mutex
	issues   map[string]model.Issue
	errs     map[string]error
	calls    map[string]int
	comments []string
	decline  bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues: make(map[string]model.Issue),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeTracker) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTracker) GetIssue(ctx context.Context, identifier string) (model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["issue"]++
	if err, ok := f.errs[identifier]; ok {
		return model.Issue{}, err
	}
	is, ok := f.issues[identifier]
	if !ok {
		return model.Issue{}, &remote.APIError{Kind: remote.KindNotFound, Op: "tracker.issue", Message: "issue not found"}
	}
	return is, nil
}

func (f *fakeTracker) CreateComment(ctx context.Context, issueID, body string) (model.TrackerComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["comment"]++
	if f.decline {
		return model.TrackerComment{}, &remote.APIError{Kind: remote.KindRejected, Op: "tracker.commentCreate", Message: "tracker declined the comment"}
	}
	f.comments = append(f.comments, body)
	return model.TrackerComment{ID: "cmt-1", Body: body}, nil
}

// recordingSink keeps the current contents of every layer per view.
type recordingSink struct {
	mu     sync.Mutex
	layers map[string]map[Layer][]Annotation
}

func newRecordingSink() *recordingSink {
	return &recordingSink{layers: make(map[string]map[Layer][]Annotation)}
}

func (s *recordingSink) Apply(viewID string, layer Layer, anns []Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layers[viewID] == nil {
		s.layers[viewID] = make(map[Layer][]Annotation)
	}
	cp := make([]Annotation, len(anns))
	copy(cp, anns)
	s.layers[viewID][layer] = cp
}

func (s *recordingSink) Clear(viewID string, layer Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.layers[viewID]; ok {
		delete(m, layer)
	}
}

func (s *recordingSink) get(viewID string, layer Layer) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	anns, ok := s.layers[viewID][layer]
	if !ok {
		return nil
	}
	cp := make([]Annotation, len(anns))
	copy(cp, anns)
	return cp
}

func (s *recordingSink) viewState(viewID string) map[Layer][]Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Layer][]Annotation)
	for layer, anns := range s.layers[viewID] {
		cp := make([]Annotation, len(anns))
		copy(cp, anns)
		out[layer] = cp
	}
	return out
}

// memDoc is an in-memory Document whose version advances on every edit.
type memDoc struct {
	mu      sync.Mutex
	id      string
	text    string
	version int
}

func newMemDoc(id, text string) *memDoc {
	return &memDoc{id: id, text: text, version: 1}
}

func (d *memDoc) ID() string { return d.id }

func (d *memDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *memDoc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *memDoc) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.version++
}

// harness wires an engine to fakes with a pinned clock and a short
// debounce.
type harness struct {
	chat    *fakeChat
	tracker *fakeTracker
	sink    *recordingSink
	cache   *objcache.Cache
	engine  *Engine
	snaps   chan *Snapshot
}

func newHarness(t *testing.T, mutate func(*config.Settings)) *harness {
	t.Helper()

	chat := newFakeChat()
	chat.messages[testChannel+":"+testTS] = model.Message{
		Timestamp: testTS,
		ChannelID: testChannel,
		AuthorID:  "U1",
		Text:      "hi",
	}
	chat.users["U1"] = model.User{ID: "U1", Name: "alice"}
	chat.channels[testChannel] = model.Channel{ID: testChannel, Name: "general"}

	tracker := newFakeTracker()
	tracker.issues["ENG-1234"] = model.Issue{
		ID:         "issue-uuid-1",
		Identifier: "ENG-1234",
		Title:      "Fix the flaky test",
		URL:        "https://tracker.example.com/issue/ENG-1234",
		State:      model.IssueState{Name: "In Progress", Type: model.StateStarted},
	}

	settings := config.DefaultSettings()
	settings.Debounce = 20 * time.Millisecond
	if mutate != nil {
		mutate(&settings)
	}

	sink := newRecordingSink()
	cache := objcache.New()
	snaps := make(chan *Snapshot, 64)
	eng := NewEngine(EngineConfig{
		Matcher:    permalink.New(testHost),
		Resolver:   NewResolver(chat, tracker, cache, nil),
		Sink:       sink,
		Settings:   settings,
		OnSnapshot: func(s *Snapshot) { snaps <- s },
		Clock:      func() time.Time { return testNow },
	})
	t.Cleanup(eng.Close)

	return &harness{chat: chat, tracker: tracker, sink: sink, cache: cache, engine: eng, snaps: snaps}
}

func (h *harness) waitSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	select {
	case s := <-h.snaps:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func (h *harness) drainSnapshots() {
	for {
		select {
		case <-h.snaps:
		default:
			return
		}
	}
}
