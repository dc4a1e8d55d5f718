package bridge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"threadlens/pkg/bridge"
	"threadlens/pkg/config"
	"threadlens/pkg/decor"
	"threadlens/pkg/model"
	"threadlens/pkg/objcache"
	"threadlens/pkg/permalink"
)

const (
	wsHost = "example-chat.com"
	wsURL  = "https://dev.example-chat.com/archives/C1234ABCD/p1234567890123456"
)

type stubChat struct{}

func (stubChat) GetMessage(_ context.Context, channelID, ts string) (model.Message, error) {
	return model.Message{Timestamp: ts, ChannelID: channelID, AuthorID: "U1", Text: "ship it for ENG-7"}, nil
}

func (stubChat) GetThread(_ context.Context, channelID, rootTS string) (model.Thread, error) {
	return model.Thread{
		Parent: model.Message{Timestamp: rootTS, ChannelID: channelID, AuthorID: "U1", Text: "ship it for ENG-7"},
	}, nil
}

func (stubChat) GetUser(_ context.Context, userID string) (model.User, error) {
	return model.User{ID: userID, Name: "alice"}, nil
}

func (stubChat) GetChannel(_ context.Context, channelID string) (model.Channel, error) {
	return model.Channel{ID: channelID, Name: "general"}, nil
}

type stubTracker struct {
	mu       sync.Mutex
	comments []string
}

func (s *stubTracker) GetIssue(_ context.Context, identifier string) (model.Issue, error) {
	return model.Issue{
		ID:         "issue-uuid-7",
		Identifier: identifier,
		Title:      "Ship the thing",
		URL:        "https://tracker.example.com/issue/" + identifier,
		State:      model.IssueState{Name: "In Progress", Type: model.StateStarted},
	}, nil
}

func (s *stubTracker) CreateComment(_ context.Context, _, body string) (model.TrackerComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, body)
	return model.TrackerComment{ID: "comment-1", Body: body}, nil
}

func (s *stubTracker) lastComment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.comments) == 0 {
		return ""
	}
	return s.comments[len(s.comments)-1]
}

// serverEnvelope decodes any server-to-client message.
type serverEnvelope struct {
	Type     string              `json:"type"`
	ID       string              `json:"id"`
	DocID    string              `json:"doc_id"`
	Version  int                 `json:"version"`
	Layers   []bridge.LayerBatch `json:"layers"`
	Found    bool                `json:"found"`
	Markdown string              `json:"markdown"`
	Actions  []string            `json:"actions"`
	OK       bool                `json:"ok"`
	Result   map[string]any      `json:"result"`
	Error    string              `json:"error"`
}

type bridgeHarness struct {
	tracker *stubTracker
	baseURL string
	conn    *websocket.Conn
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()

	tracker := &stubTracker{}
	resolver := decor.NewResolver(stubChat{}, tracker, objcache.New(), nil)

	settings := config.DefaultSettings()
	settings.Debounce = 10 * time.Millisecond

	hub := bridge.NewHub(bridge.Config{
		Matcher:  permalink.New(wsHost),
		Resolver: resolver,
		Settings: settings,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := bridge.NewServer("127.0.0.1:0", hub, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	dialURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(dialURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", dialURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return &bridgeHarness{tracker: tracker, baseURL: ts.URL, conn: conn}
}

func (h *bridgeHarness) sendJSON(t *testing.T, msg bridge.ClientMessage) {
	t.Helper()
	if err := h.conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

// await reads messages until one of the wanted type arrives, skipping
// interleaved pushes.
func (h *bridgeHarness) await(t *testing.T, wantType string) serverEnvelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = h.conn.SetReadDeadline(deadline)
		var env serverEnvelope
		if err := h.conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", wantType, err)
		}
		if env.Type == wantType {
			return env
		}
	}
}

func (h *bridgeHarness) openDoc(t *testing.T, id, text string) serverEnvelope {
	t.Helper()
	h.sendJSON(t, bridge.ClientMessage{
		Type: bridge.TypeOpen,
		Doc:  &bridge.DocPayload{ID: id, URI: id, Text: text, Version: 1},
	})
	return h.await(t, bridge.TypeDecorations)
}

func (h *bridgeHarness) command(t *testing.T, id, name string, args any) {
	t.Helper()
	msg := bridge.ClientMessage{Type: bridge.TypeCommand, ID: id, Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			t.Fatal(err)
		}
		msg.Args = raw
	}
	h.sendJSON(t, msg)
}

func layerNamed(env serverEnvelope, name string) (bridge.LayerBatch, bool) {
	for _, l := range env.Layers {
		if l.Layer == name {
			return l, true
		}
	}
	return bridge.LayerBatch{}, false
}

func docText() string {
	return "// see " + wsURL + "\nfn main() {}\n"
}

func TestBridge_OpenPushesDecorations(t *testing.T) {
	h := newBridgeHarness(t)

	env := h.openDoc(t, "file:///a.rs", docText())
	if env.DocID != "file:///a.rs" {
		t.Errorf("doc_id = %q", env.DocID)
	}
	if env.Version != 1 {
		t.Errorf("version = %d, want 1", env.Version)
	}

	previews, ok := layerNamed(env, "preview")
	if !ok {
		t.Fatalf("no preview layer in %+v", env.Layers)
	}
	if len(previews.Annotations) != 1 {
		t.Fatalf("preview annotations = %d, want 1", len(previews.Annotations))
	}
	ann := previews.Annotations[0]
	if !strings.Contains(ann.Text, "ship it for ENG-7") {
		t.Errorf("preview text = %q", ann.Text)
	}
	if ann.Line != 0 || ann.Col != 7 {
		t.Errorf("preview position = %d:%d, want 0:7", ann.Line, ann.Col)
	}

	channels, ok := layerNamed(env, "channel-name")
	if !ok {
		t.Fatal("no channel-name layer")
	}
	if channels.Annotations[0].Text != "#general" {
		t.Errorf("channel text = %q", channels.Annotations[0].Text)
	}
}

func TestBridge_ChangeWithoutLinksClears(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	h.sendJSON(t, bridge.ClientMessage{
		Type:    bridge.TypeChange,
		DocID:   "doc-1",
		Text:    "fn main() {}\n",
		Version: 2,
	})
	env := h.await(t, bridge.TypeCleared)
	if env.DocID != "doc-1" {
		t.Errorf("cleared doc_id = %q", env.DocID)
	}
}

func TestBridge_HoverRoundTrip(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	h.sendJSON(t, bridge.ClientMessage{Type: bridge.TypeHover, ID: "h1", DocID: "doc-1", Offset: 7})
	env := h.await(t, bridge.TypeHoverResult)
	if env.ID != "h1" {
		t.Errorf("id = %q, want h1", env.ID)
	}
	if !env.Found {
		t.Fatal("hover should find the link at offset 7")
	}
	if !strings.Contains(env.Markdown, "alice") {
		t.Errorf("markdown missing author: %q", env.Markdown)
	}
	if len(env.Actions) == 0 {
		t.Error("hover should offer actions")
	}

	h.sendJSON(t, bridge.ClientMessage{Type: bridge.TypeHover, ID: "h2", DocID: "doc-1", Offset: 0})
	env = h.await(t, bridge.TypeHoverResult)
	if env.Found {
		t.Error("offset 0 is before the link, hover should miss")
	}
}

func TestBridge_ToggleCommand(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	h.command(t, "c1", "decorations.toggle", nil)
	cleared := h.await(t, bridge.TypeCleared)
	if cleared.DocID != "doc-1" {
		t.Errorf("cleared doc_id = %q", cleared.DocID)
	}
	result := h.await(t, bridge.TypeCommandResult)
	if !result.OK {
		t.Fatalf("toggle failed: %s", result.Error)
	}
	if enabled, _ := result.Result["enabled"].(bool); enabled {
		t.Error("first toggle should disable")
	}

	// Re-enabling answers the command and rescans concurrently; collect
	// both messages in whichever order they land.
	h.command(t, "c2", "decorations.toggle", nil)
	var gotResult, gotDecorations bool
	deadline := time.Now().Add(3 * time.Second)
	for !gotResult || !gotDecorations {
		_ = h.conn.SetReadDeadline(deadline)
		var env serverEnvelope
		if err := h.conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for toggle-on messages: %v", err)
		}
		switch env.Type {
		case bridge.TypeCommandResult:
			if enabled, _ := env.Result["enabled"].(bool); !enabled {
				t.Error("second toggle should enable")
			}
			gotResult = true
		case bridge.TypeDecorations:
			gotDecorations = true
		}
	}
}

func TestBridge_CommentBuildCommand(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	h.command(t, "c1", "comment.build", map[string]any{"doc_id": "doc-1", "offset": 7, "leader": "#"})
	result := h.await(t, bridge.TypeCommandResult)
	if !result.OK {
		t.Fatalf("comment.build failed: %s", result.Error)
	}
	block, _ := result.Result["block"].(string)
	if !strings.Contains(block, "# alice (") {
		t.Errorf("block missing attribution: %q", block)
	}
	if !strings.Contains(block, "# "+wsURL) {
		t.Errorf("block missing permalink: %q", block)
	}
}

func TestBridge_TrackerCommands(t *testing.T) {
	h := newBridgeHarness(t)

	h.command(t, "c1", "tracker.status", nil)
	result := h.await(t, bridge.TypeCommandResult)
	if configured, _ := result.Result["configured"].(bool); !configured {
		t.Error("tracker should be configured")
	}

	h.command(t, "c2", "tracker.status", map[string]any{"ref": "ENG-7"})
	result = h.await(t, bridge.TypeCommandResult)
	if !result.OK {
		t.Fatalf("tracker.status failed: %s", result.Error)
	}
	if result.Result["identifier"] != "ENG-7" {
		t.Errorf("identifier = %v", result.Result["identifier"])
	}
	if result.Result["state"] != "In Progress" {
		t.Errorf("state = %v", result.Result["state"])
	}

	h.command(t, "c3", "tracker.comment", map[string]any{"ref": "ENG-7", "body": "from the bridge"})
	result = h.await(t, bridge.TypeCommandResult)
	if !result.OK {
		t.Fatalf("tracker.comment failed: %s", result.Error)
	}
	if got := h.tracker.lastComment(); got != "from the bridge" {
		t.Errorf("posted body = %q", got)
	}
}

func TestBridge_UnknownCommandKeepsConnection(t *testing.T) {
	h := newBridgeHarness(t)

	h.command(t, "c1", "no.such.command", nil)
	result := h.await(t, bridge.TypeCommandResult)
	if result.OK {
		t.Error("unknown command should fail")
	}
	if !strings.Contains(result.Error, "no.such.command") {
		t.Errorf("error = %q", result.Error)
	}

	h.sendJSON(t, bridge.ClientMessage{Type: bridge.TypePing})
	h.await(t, bridge.TypePong)
}

func TestBridge_CloseDocClears(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	h.sendJSON(t, bridge.ClientMessage{Type: bridge.TypeClose, DocID: "doc-1"})
	env := h.await(t, bridge.TypeCleared)
	if env.DocID != "doc-1" {
		t.Errorf("cleared doc_id = %q", env.DocID)
	}
}

func TestBridge_SettingsPatchRescans(t *testing.T) {
	h := newBridgeHarness(t)
	h.openDoc(t, "doc-1", docText())

	off := false
	h.sendJSON(t, bridge.ClientMessage{
		Type:     bridge.TypeSettings,
		Settings: &bridge.SettingsPatch{Inline: &bridge.InlinePatch{Enabled: &off}},
	})

	env := h.await(t, bridge.TypeDecorations)
	if _, ok := layerNamed(env, "preview"); ok {
		t.Error("preview layer should be gone after disabling inline")
	}
	if _, ok := layerNamed(env, "channel-name"); !ok {
		t.Error("channel-name layer should survive the inline toggle")
	}
}

func TestBridge_Healthz(t *testing.T) {
	h := newBridgeHarness(t)

	h.sendJSON(t, bridge.ClientMessage{Type: bridge.TypePing})
	h.await(t, bridge.TypePong)

	resp, err := http.Get(h.baseURL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", body.Sessions)
	}
}
