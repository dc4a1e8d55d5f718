package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"threadlens/pkg/config"
	"threadlens/pkg/decor"
	"threadlens/pkg/permalink"
	"threadlens/pkg/preview"
	"threadlens/pkg/watcher"
)

const noticeTTL = 4 * time.Second

type focusArea int

const (
	focusLinks focusArea = iota
	focusFile
	focusHover
	focusPrompt
	focusHelp
)

func (f focusArea) String() string {
	switch f {
	case focusFile:
		return "file"
	case focusHover:
		return "hover"
	case focusPrompt:
		return "prompt"
	case focusHelp:
		return "help"
	default:
		return "links"
	}
}

// UpdateMsg announces a newer released version. main sends it after the
// background check finishes.
type UpdateMsg struct {
	Version string
	URL     string
}

type watchMsg struct {
	event watcher.Event
	ok    bool
}

type hoverMsg struct {
	hover *decor.Hover
	ok    bool
}

type commentMsg struct {
	block  string
	insert bool
	line   int
	err    error
}

type trackerPostedMsg struct {
	identifier string
	err        error
}

type noticeExpiredMsg struct {
	seq int
}

// Model is the single bubbletea model: file pane on the left, link list
// on the right, hover and help replacing the right pane when active.
type Model struct {
	engine   *decor.Engine
	resolver *decor.Resolver
	doc      *FileDocument
	watch    *watcher.Watcher
	log      *zap.SugaredLogger

	viewID   string
	settings config.Settings
	styles   *Styles
	fileView *FileView
	links    list.Model
	input    textinput.Model
	glam     *glamour.TermRenderer

	focus       focusArea
	snapshot    *decor.Snapshot
	hover       *decor.Hover
	hoverMD     string
	promptState decor.LinkState

	width, height int
	ready         bool
	notice        string
	noticeErr     bool
	noticeSeq     int
	updateBanner  string
	quitting      bool
}

// NewModel wires the TUI around an engine and its document. The watcher
// and logger may be nil.
func NewModel(eng *decor.Engine, res *decor.Resolver, doc *FileDocument, w *watcher.Watcher, settings config.Settings, log *zap.SugaredLogger) Model {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	styles := NewStyles(lipgloss.DefaultRenderer(), settings)

	links := list.New(nil, LinkDelegate{Tier: TierCompact, Styles: &styles}, 0, 0)
	links.SetShowTitle(false)
	links.SetShowStatusBar(false)
	links.SetShowHelp(false)
	links.SetFilteringEnabled(true)
	links.DisableQuitKeybindings()

	input := textinput.New()
	input.Placeholder = "add a note (optional)"
	input.CharLimit = 500

	m := Model{
		engine:   eng,
		resolver: res,
		doc:      doc,
		watch:    w,
		log:      log,
		settings: settings,
		styles:   &styles,
		fileView: NewFileView(&styles),
		links:    links,
		input:    input,
		focus:    focusLinks,
	}
	if doc != nil {
		m.viewID = doc.ID()
		m.fileView.SetText(doc.Text())
	}
	return m
}

// FocusState names the focused surface, for tests and the status bar.
func (m Model) FocusState() string {
	return m.focus.String()
}

// LinkCount returns the number of links in the latest snapshot.
func (m Model) LinkCount() int {
	if m.snapshot == nil {
		return 0
	}
	return len(m.snapshot.Links)
}

// Notice returns the transient status message.
func (m Model) Notice() string {
	return m.notice
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForWatch(), textinput.Blink)
}

func (m Model) waitForWatch() tea.Cmd {
	if m.watch == nil {
		return nil
	}
	events := m.watch.Events()
	return func() tea.Msg {
		ev, ok := <-events
		return watchMsg{event: ev, ok: ok}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		return m.handleSnapshot(msg.Snapshot)

	case LayerMsg:
		if msg.ViewID == m.viewID {
			m.fileView.SetLayer(msg.Layer, msg.Annotations)
		}
		return m, nil

	case watchMsg:
		if !msg.ok {
			return m, nil
		}
		if m.doc != nil {
			if err := m.doc.Reload(); err != nil {
				m.log.Warnw("reload after change failed", "path", m.doc.Path(), "error", err)
			} else {
				m.fileView.SetText(m.doc.Text())
				m.engine.DocumentChanged(m.viewID)
			}
		}
		return m, m.waitForWatch()

	case hoverMsg:
		if !msg.ok || msg.hover == nil {
			return m.setNotice("no link under the cursor", true)
		}
		m.hover = msg.hover
		m.hoverMD = m.renderMarkdown(msg.hover.Markdown)
		m.focus = focusHover
		return m, nil

	case commentMsg:
		return m.handleComment(msg)

	case trackerPostedMsg:
		if msg.err != nil {
			return m.setNotice(fmt.Sprintf("tracker comment failed: %v", msg.err), true)
		}
		return m.setNotice(fmt.Sprintf("comment posted to %s", msg.identifier), false)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.noticeErr = false
		}
		return m, nil

	case UpdateMsg:
		m.updateBanner = fmt.Sprintf("update %s available", msg.Version)
		return m, nil
	}

	return m, nil
}

func (m *Model) layout() {
	rightW := m.rightWidth()
	m.links.SetSize(rightW-2, m.bodyHeight()-2)
	m.links.SetDelegate(LinkDelegate{Tier: TierFor(rightW), Styles: m.styles})

	wrap := rightW - 6
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
	if err != nil {
		m.glam = nil
		return
	}
	m.glam = r
}

func (m Model) leftWidth() int {
	return (m.width * 3) / 5
}

func (m Model) rightWidth() int {
	return m.width - m.leftWidth()
}

func (m Model) bodyHeight() int {
	h := m.height - 2
	if m.focus == focusPrompt {
		h--
	}
	if h < 3 {
		h = 3
	}
	return h
}

func (m Model) renderMarkdown(md string) string {
	if m.glam == nil {
		return md
	}
	out, err := m.glam.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (m Model) handleSnapshot(snap *decor.Snapshot) (tea.Model, tea.Cmd) {
	if snap == nil || snap.ViewID != m.viewID {
		return m, nil
	}
	m.snapshot = snap

	text := ""
	if m.doc != nil {
		text = m.doc.Text()
	}
	index := permalink.NewIndex(text)

	items := make([]list.Item, len(snap.Links))
	for i, st := range snap.Links {
		items[i] = LinkItem{
			State: st,
			Index: i,
			Line:  index.Position(st.Match.Start).Line,
		}
	}
	cmd := m.links.SetItems(items)
	m.syncFileSelection()
	return m, cmd
}

func (m Model) handleComment(msg commentMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m.setNotice(fmt.Sprintf("comment failed: %v", msg.err), true)
	}
	if !msg.insert {
		if err := clipboard.WriteAll(msg.block); err != nil {
			return m.setNotice(fmt.Sprintf("clipboard: %v", err), true)
		}
		return m.setNotice("comment copied", false)
	}
	if m.doc == nil {
		return m, nil
	}
	if err := m.doc.InsertAbove(msg.line, msg.block); err != nil {
		return m.setNotice(fmt.Sprintf("insert failed: %v", err), true)
	}
	m.fileView.SetText(m.doc.Text())
	m.engine.DocumentChanged(m.viewID)
	return m.setNotice("comment inserted", false)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The filter input owns the keyboard while typing.
	if m.focus == focusLinks && m.links.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.links, cmd = m.links.Update(msg)
		m.syncFileSelection()
		return m, cmd
	}

	switch m.focus {
	case focusPrompt:
		return m.handlePromptKey(msg)
	case focusHelp:
		m.focus = focusLinks
		return m, nil
	case focusHover:
		return m.handleHoverKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.focus = focusHelp
		return m, nil
	case "tab":
		if m.focus == focusLinks {
			m.focus = focusFile
		} else {
			m.focus = focusLinks
		}
		return m, nil
	case "t":
		enabled := !m.engine.Enabled()
		m.engine.SetEnabled(enabled)
		if enabled {
			return m.setNotice("decorations on", false)
		}
		return m.setNotice("decorations off", false)
	case "R":
		m.settings.Inline.UseRelativeTime = !m.settings.Inline.UseRelativeTime
		m.engine.UpdateSettings(m.settings)
		if m.settings.Inline.UseRelativeTime {
			return m.setNotice("relative timestamps", false)
		}
		return m.setNotice("absolute timestamps", false)
	case "x":
		m.engine.ClearCaches()
		return m.setNotice("caches cleared", false)
	case "h", "enter":
		return m.openHover()
	case "y":
		return m.copyPreview()
	case "c":
		return m.commentCmd(false)
	case "i":
		return m.commentCmd(true)
	case "o":
		return m.openLink()
	case "P":
		return m.openPrompt()
	}

	switch m.focus {
	case focusFile:
		return m.handleFileKey(msg)
	default:
		var cmd tea.Cmd
		m.links, cmd = m.links.Update(msg)
		m.syncFileSelection()
		return m, cmd
	}
}

func (m Model) handleFileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sel := m.fileView.Selected()
	switch msg.String() {
	case "j", "down":
		m.fileView.Select(sel + 1)
	case "k", "up":
		m.fileView.Select(sel - 1)
	case "g":
		m.fileView.Select(0)
	case "G":
		m.fileView.Select(m.fileView.LineCount() - 1)
	}
	return m, nil
}

func (m Model) handleHoverKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "h":
		m.focus = focusLinks
		m.hover = nil
		m.hoverMD = ""
		return m, nil
	case "o":
		return m.openLink()
	case "c":
		return m.commentCmd(false)
	case "i":
		return m.commentCmd(true)
	case "y":
		return m.copyPreview()
	case "P":
		return m.openPrompt()
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = focusLinks
		m.input.Blur()
		return m, nil
	case "enter":
		note := m.input.Value()
		state := m.promptState
		m.focus = focusLinks
		m.input.Blur()
		return m, m.postTracker(state, note)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// selectedState returns the link the current focus points at.
func (m Model) selectedState() (decor.LinkState, int, bool) {
	if m.focus == focusFile {
		return m.linkOnLine(m.fileView.Selected())
	}
	if m.focus == focusHover && m.hover != nil {
		if st := m.snapshotLink(m.hover.Match.Start); st != nil {
			line := m.lineOf(st.Match.Start)
			return *st, line, true
		}
	}
	item, ok := m.links.SelectedItem().(LinkItem)
	if !ok {
		return decor.LinkState{}, 0, false
	}
	return item.State, item.Line, true
}

func (m Model) snapshotLink(offset int) *decor.LinkState {
	if m.snapshot == nil {
		return nil
	}
	return m.snapshot.LinkAt(offset)
}

func (m Model) lineOf(offset int) int {
	if m.doc == nil {
		return 0
	}
	return permalink.NewIndex(m.doc.Text()).Position(offset).Line
}

func (m Model) linkOnLine(line int) (decor.LinkState, int, bool) {
	if m.snapshot == nil {
		return decor.LinkState{}, 0, false
	}
	for _, st := range m.snapshot.Links {
		if m.lineOf(st.Match.Start) == line {
			return st, line, true
		}
	}
	return decor.LinkState{}, 0, false
}

func (m *Model) syncFileSelection() {
	if item, ok := m.links.SelectedItem().(LinkItem); ok {
		m.fileView.Select(item.Line)
	}
}

func (m Model) openHover() (tea.Model, tea.Cmd) {
	state, _, ok := m.selectedState()
	if !ok {
		return m.setNotice("no link selected", true)
	}
	eng, viewID, offset := m.engine, m.viewID, state.Match.Start
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h, ok := eng.HoverAt(ctx, viewID, offset)
		return hoverMsg{hover: h, ok: ok}
	}
}

func (m Model) copyPreview() (tea.Model, tea.Cmd) {
	state, _, ok := m.selectedState()
	if !ok || state.Err != nil {
		return m.setNotice("no resolved link selected", true)
	}
	if err := clipboard.WriteAll(state.Preview); err != nil {
		return m.setNotice(fmt.Sprintf("clipboard: %v", err), true)
	}
	return m.setNotice("preview copied", false)
}

func (m Model) commentCmd(insert bool) (tea.Model, tea.Cmd) {
	state, line, ok := m.selectedState()
	if !ok {
		return m.setNotice("no link selected", true)
	}
	leader := "//"
	if m.doc != nil {
		leader = CommentLeaderFor(m.doc.Path())
	}
	eng, viewID, offset := m.engine, m.viewID, state.Match.Start
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		block, err := eng.BuildComment(ctx, viewID, offset, leader)
		return commentMsg{block: block, insert: insert, line: line, err: err}
	}
}

func (m Model) openLink() (tea.Model, tea.Cmd) {
	state, _, ok := m.selectedState()
	if !ok {
		return m.setNotice("no link selected", true)
	}
	if err := OpenBrowser(state.Match.Link.Raw); err != nil {
		return m.setNotice(fmt.Sprintf("open failed: %v", err), true)
	}
	return m.setNotice("opened in browser", false)
}

func (m Model) openPrompt() (tea.Model, tea.Cmd) {
	state, _, ok := m.selectedState()
	if !ok || state.Err != nil {
		return m.setNotice("no resolved link selected", true)
	}
	if state.IssueRef == "" {
		return m.setNotice("no issue reference on this message", true)
	}
	if m.resolver == nil || !m.resolver.HasTracker() {
		return m.setNotice("tracker not configured", true)
	}
	m.promptState = state
	m.input.SetValue("")
	m.input.Focus()
	m.focus = focusPrompt
	return m, textinput.Blink
}

func (m Model) postTracker(state decor.LinkState, note string) tea.Cmd {
	res := m.resolver
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		issue, err := res.Issue(ctx, state.IssueRef)
		if err != nil {
			return trackerPostedMsg{identifier: state.IssueRef, err: err}
		}

		var sb strings.Builder
		if note = strings.TrimSpace(note); note != "" {
			sb.WriteString(note)
			sb.WriteString("\n\n")
		}
		sb.WriteString("> ")
		sb.WriteString(state.Preview)
		sb.WriteString("\n\n")
		sb.WriteString(state.Match.Link.Raw)

		if _, err := res.CreateComment(ctx, issue.ID, sb.String()); err != nil {
			return trackerPostedMsg{identifier: issue.Identifier, err: err}
		}
		return trackerPostedMsg{identifier: issue.Identifier}
	}
}

func (m Model) setNotice(text string, isErr bool) (Model, tea.Cmd) {
	m.notice = text
	m.noticeErr = isErr
	m.noticeSeq++
	seq := m.noticeSeq
	return m, tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting threadlens…\n"
	}

	header := m.renderHeader()
	body := m.renderBody()
	status := m.renderStatus()

	rows := []string{header, body}
	if m.focus == focusPrompt {
		rows = append(rows, m.renderPrompt())
	}
	rows = append(rows, status)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderHeader() string {
	s := m.styles
	name := "threadlens"
	if m.doc != nil {
		name += " · " + filepath.Base(m.doc.Path())
	}
	left := s.Header.Render(name)

	right := ""
	if m.updateBanner != "" {
		right = s.Notice.Render(m.updateBanner)
	}
	if !m.engine.Enabled() {
		if right != "" {
			right += " "
		}
		right += s.ErrorNotice.Render("decorations off")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderBody() string {
	s := m.styles
	bodyH := m.bodyHeight()
	leftW := m.leftWidth()
	rightW := m.rightWidth()

	filePanel := s.Panel
	rightPanel := s.Panel
	switch m.focus {
	case focusFile:
		filePanel = s.FocusedPanel
	default:
		rightPanel = s.FocusedPanel
	}

	left := filePanel.Width(leftW - 2).Height(bodyH - 2).
		Render(m.fileView.View(leftW-4, bodyH-2))

	var rightContent string
	switch m.focus {
	case focusHover:
		rightContent = m.hoverMD
	case focusHelp:
		rightContent = m.helpText()
	default:
		rightContent = m.links.View()
	}
	right := rightPanel.Width(rightW - 2).Height(bodyH - 2).Render(rightContent)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) renderPrompt() string {
	s := m.styles
	label := s.StatusKey.Render("comment " + m.promptState.IssueRef + ": ")
	return label + m.input.View()
}

func (m Model) renderStatus() string {
	s := m.styles

	left := ""
	switch {
	case m.notice != "" && m.noticeErr:
		left = s.ErrorNotice.Render(m.notice)
	case m.notice != "":
		left = s.Notice.Render(m.notice)
	default:
		left = s.StatusBar.Render(m.keyHints())
	}

	right := s.StatusBar.Render(m.statsLine())

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right
	return m.styles.Renderer.NewStyle().MaxWidth(m.width).Render(line)
}

func (m Model) keyHints() string {
	switch m.focus {
	case focusHover:
		return "esc close · o open · i insert · c copy · P tracker"
	case focusPrompt:
		return "enter send · esc cancel"
	case focusHelp:
		return "any key to close"
	case focusFile:
		return "j/k line · tab links · h hover · q quit"
	default:
		return "j/k move · tab file · h hover · i insert · c copy · o open · ? help · q quit"
	}
}

func (m Model) statsLine() string {
	snap := m.snapshot
	if snap == nil {
		return "scanning…"
	}

	parts := []string{fmt.Sprintf("%d links", len(snap.Links))}
	if snap.FailCount > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", snap.FailCount))
	}
	if d := FormatScanDuration(snap.Duration); d != "" {
		parts = append(parts, d)
	}
	if m.resolver != nil {
		parts = append(parts, fmt.Sprintf("cache %d", m.resolver.Cache().Sizes().Total()))
	}
	if state, _, ok := m.selectedState(); ok && state.Err == nil && state.Preview != "" {
		parts = append(parts, preview.Truncate(state.Preview, m.settings.StatusBar.MaxLength))
	}
	return strings.Join(parts, " · ")
}

func (m Model) helpText() string {
	return strings.Join([]string{
		"threadlens keys",
		"",
		"  j/k, ↑/↓    move",
		"  tab         switch pane",
		"  /           filter links",
		"  h, enter    hover card",
		"  y           copy preview",
		"  c           copy comment block",
		"  i           insert comment above link",
		"  o           open in browser",
		"  P           comment on linked issue",
		"  t           toggle decorations",
		"  R           relative/absolute times",
		"  x           clear caches",
		"  q, ctrl+c   quit",
	}, "\n")
}
