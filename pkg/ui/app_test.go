package ui_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"threadlens/pkg/config"
	"threadlens/pkg/decor"
	"threadlens/pkg/model"
	"threadlens/pkg/objcache"
	"threadlens/pkg/permalink"
	"threadlens/pkg/ui"
)

const (
	appHost = "example-chat.com"
	appURL  = "https://ws.example-chat.com/archives/C1234ABCD/p1234567890123456"
)

func appKeyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{
		Type:  tea.KeyRunes,
		Runes: []rune(key),
	}
}

func appSpecialKey(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

// stubChat answers every lookup with fixed objects.
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

// stubTracker records created comments.
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

func (s *stubTracker) CreateComment(_ context.Context, issueID, body string) (model.TrackerComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, body)
	return model.TrackerComment{ID: fmt.Sprintf("comment-%d", len(s.comments)), Body: body}, nil
}

func (s *stubTracker) lastComment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.comments) == 0 {
		return ""
	}
	return s.comments[len(s.comments)-1]
}

type appHarness struct {
	m       ui.Model
	eng     *decor.Engine
	doc     *ui.FileDocument
	tracker *stubTracker
	path    string
	snaps   chan *decor.Snapshot
}

func newAppHarness(t *testing.T) *appHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notes.go")
	content := "package notes\n\n// see " + appURL + "\nfunc main() {}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ui.OpenFileDocument(path)
	if err != nil {
		t.Fatal(err)
	}

	settings := config.DefaultSettings()
	settings.Debounce = 10 * time.Millisecond

	tracker := &stubTracker{}
	resolver := decor.NewResolver(stubChat{}, tracker, objcache.New(), nil)

	snaps := make(chan *decor.Snapshot, 16)
	eng := decor.NewEngine(decor.EngineConfig{
		Matcher:    permalink.New(appHost),
		Resolver:   resolver,
		Settings:   settings,
		OnSnapshot: func(s *decor.Snapshot) { snaps <- s },
	})
	t.Cleanup(eng.Close)

	h := &appHarness{
		m:       ui.NewModel(eng, resolver, doc, nil, settings, nil),
		eng:     eng,
		doc:     doc,
		tracker: tracker,
		path:    path,
		snaps:   snaps,
	}
	eng.OpenView(doc)
	return h
}

func (h *appHarness) update(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	mdl, cmd := h.m.Update(msg)
	h.m = mdl.(ui.Model)
	return cmd
}

// run executes a command and feeds its message back, the way the
// program loop would.
func (h *appHarness) run(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if msg := cmd(); msg != nil {
		h.update(t, msg)
	}
}

func (h *appHarness) waitSnapshot(t *testing.T) *decor.Snapshot {
	t.Helper()
	select {
	case s := <-h.snaps:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scan")
		return nil
	}
}

// feed delivers a snapshot and its layers to the model the way the
// program sink would.
func (h *appHarness) feed(t *testing.T, snap *decor.Snapshot) {
	t.Helper()
	h.update(t, ui.SnapshotMsg{Snapshot: snap})
	for _, layer := range decor.AllLayers {
		h.update(t, ui.LayerMsg{ViewID: snap.ViewID, Layer: layer, Annotations: snap.Layers[layer]})
	}
}

func (h *appHarness) ready(t *testing.T) {
	t.Helper()
	h.update(t, tea.WindowSizeMsg{Width: 120, Height: 40})
	h.feed(t, h.waitSnapshot(t))
}

func TestApp_SnapshotPopulatesView(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	if got := h.m.LinkCount(); got != 1 {
		t.Fatalf("LinkCount = %d, want 1", got)
	}
	if h.m.FocusState() != "links" {
		t.Errorf("initial focus = %q, want links", h.m.FocusState())
	}

	out := h.m.View()
	if !strings.Contains(out, "ship it") {
		t.Errorf("view missing message preview:\n%s", out)
	}
	if !strings.Contains(out, "#general") {
		t.Errorf("view missing channel substitution:\n%s", out)
	}
	if !strings.Contains(out, "1 links") {
		t.Errorf("status bar missing link count:\n%s", out)
	}
}

func TestApp_TabSwitchesPanes(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appSpecialKey(tea.KeyTab))
	if h.m.FocusState() != "file" {
		t.Errorf("after tab, focus = %q, want file", h.m.FocusState())
	}

	h.update(t, appSpecialKey(tea.KeyTab))
	if h.m.FocusState() != "links" {
		t.Errorf("after second tab, focus = %q, want links", h.m.FocusState())
	}
}

func TestApp_HelpOverlay(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appKeyMsg("?"))
	if h.m.FocusState() != "help" {
		t.Fatalf("focus = %q, want help", h.m.FocusState())
	}
	if !strings.Contains(h.m.View(), "threadlens keys") {
		t.Error("help text not rendered")
	}

	h.update(t, appKeyMsg("j"))
	if h.m.FocusState() != "links" {
		t.Errorf("any key should close help, focus = %q", h.m.FocusState())
	}
}

func TestApp_HoverFlow(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.run(t, h.update(t, appKeyMsg("h")))
	if h.m.FocusState() != "hover" {
		t.Fatalf("focus = %q, want hover", h.m.FocusState())
	}

	out := h.m.View()
	if !strings.Contains(out, "ship it") {
		t.Errorf("hover card missing message text:\n%s", out)
	}
	if !strings.Contains(out, "alice") {
		t.Errorf("hover card missing author:\n%s", out)
	}

	h.update(t, appSpecialKey(tea.KeyEsc))
	if h.m.FocusState() != "links" {
		t.Errorf("esc should dismiss hover, focus = %q", h.m.FocusState())
	}
}

func TestApp_ToggleDecorations(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appKeyMsg("t"))
	if h.eng.Enabled() {
		t.Fatal("engine should be disabled after t")
	}
	if h.m.Notice() != "decorations off" {
		t.Errorf("Notice = %q", h.m.Notice())
	}

	// Disabling emits a cleared snapshot; feeding it empties the list.
	h.feed(t, h.waitSnapshot(t))
	if got := h.m.LinkCount(); got != 0 {
		t.Errorf("LinkCount after disable = %d, want 0", got)
	}
	if !strings.Contains(h.m.View(), "decorations off") {
		t.Error("header should show the disabled state")
	}

	h.update(t, appKeyMsg("t"))
	if !h.eng.Enabled() {
		t.Fatal("engine should be enabled after second t")
	}
	h.feed(t, h.waitSnapshot(t))
	if got := h.m.LinkCount(); got != 1 {
		t.Errorf("LinkCount after re-enable = %d, want 1", got)
	}
}

func TestApp_RelativeTimeToggle(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appKeyMsg("R"))
	if !h.eng.Settings().Inline.UseRelativeTime {
		t.Error("engine settings should use relative time after R")
	}
	// The settings change triggers an immediate rescan.
	h.feed(t, h.waitSnapshot(t))

	h.update(t, appKeyMsg("R"))
	if h.eng.Settings().Inline.UseRelativeTime {
		t.Error("second R should restore absolute time")
	}
}

func TestApp_InsertComment(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.run(t, h.update(t, appKeyMsg("i")))
	if h.m.Notice() != "comment inserted" {
		t.Fatalf("Notice = %q, want comment inserted", h.m.Notice())
	}

	raw, err := os.ReadFile(h.path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	if !strings.Contains(content, "// alice (") {
		t.Errorf("inserted block missing author line:\n%s", content)
	}
	if !strings.Contains(content, "// ship it for ENG-7") {
		t.Errorf("inserted block missing message text:\n%s", content)
	}
	if !strings.Contains(content, "// "+appURL) {
		t.Errorf("inserted block missing the permalink:\n%s", content)
	}
	if idx := strings.Index(content, "// alice ("); idx > strings.Index(content, "// see ") {
		t.Errorf("comment should land above the link line:\n%s", content)
	}
}

func TestApp_TrackerCommentPrompt(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appKeyMsg("P"))
	if h.m.FocusState() != "prompt" {
		t.Fatalf("focus = %q, want prompt", h.m.FocusState())
	}

	for _, r := range "looks related" {
		h.update(t, appKeyMsg(string(r)))
	}
	h.run(t, h.update(t, appSpecialKey(tea.KeyEnter)))

	if h.m.FocusState() != "links" {
		t.Errorf("focus after posting = %q, want links", h.m.FocusState())
	}
	if !strings.Contains(h.m.Notice(), "ENG-7") {
		t.Errorf("Notice = %q, want posted confirmation", h.m.Notice())
	}

	body := h.tracker.lastComment()
	if !strings.Contains(body, "looks related") {
		t.Errorf("comment body missing note: %q", body)
	}
	if !strings.Contains(body, appURL) {
		t.Errorf("comment body missing permalink: %q", body)
	}
	if !strings.Contains(body, "> ") {
		t.Errorf("comment body missing quoted preview: %q", body)
	}
}

func TestApp_PromptEscCancels(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	h.update(t, appKeyMsg("P"))
	if h.m.FocusState() != "prompt" {
		t.Fatalf("focus = %q, want prompt", h.m.FocusState())
	}
	h.update(t, appSpecialKey(tea.KeyEsc))
	if h.m.FocusState() != "links" {
		t.Errorf("esc should cancel the prompt, focus = %q", h.m.FocusState())
	}
	if h.tracker.lastComment() != "" {
		t.Error("no comment should have been posted")
	}
}

func TestApp_RendersAtDifferentSizes(t *testing.T) {
	sizes := []struct {
		width, height int
	}{
		{80, 24},
		{120, 30},
		{40, 15},
		{200, 50},
	}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%dx%d", size.width, size.height), func(t *testing.T) {
			h := newAppHarness(t)
			h.update(t, tea.WindowSizeMsg{Width: size.width, Height: size.height})
			h.feed(t, h.waitSnapshot(t))

			if out := h.m.View(); out == "" {
				t.Errorf("View() empty at %dx%d", size.width, size.height)
			}
		})
	}
}

func TestApp_QuitKey(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)

	cmd := h.update(t, appKeyMsg("q"))
	if cmd == nil {
		t.Fatal("q should produce a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if h.m.View() != "" {
		t.Error("quitting model should render nothing")
	}
}
