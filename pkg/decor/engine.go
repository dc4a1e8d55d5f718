package decor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"threadlens/pkg/config"
	"threadlens/pkg/model"
	"threadlens/pkg/permalink"
	"threadlens/pkg/preview"
)

// stopTimeout bounds how long Close waits for in-flight scans.
const stopTimeout = 2 * time.Second

// EngineConfig configures an Engine.
type EngineConfig struct {
	Matcher  *permalink.Matcher
	Resolver *Resolver
	Sink     Sink
	Settings config.Settings
	Logger   *zap.SugaredLogger
	// OnSnapshot, when set, receives every committed snapshot after its
	// layers have been applied.
	OnSnapshot func(*Snapshot)
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// viewState tracks one decorated document.
type viewState struct {
	doc        Document
	debounce   *time.Timer
	generation uint64
	applied    uint64
	cancel     context.CancelFunc
	snapshot   *Snapshot
	applyMu    sync.Mutex
}

// Engine runs the decoration pipeline. Each view moves through
// scan and resolve on every trigger; a later trigger supersedes any scan
// still in flight, so at most one scan's output is ever committed per
// trigger burst. All sink calls happen off the caller's goroutine except
// the synchronous retraction in SetEnabled(false).
type Engine struct {
	matcher    *permalink.Matcher
	resolver   *Resolver
	sink       Sink
	log        *zap.SugaredLogger
	onSnapshot func(*Snapshot)
	now        func() time.Time

	ctx       context.Context
	cancelAll context.CancelFunc

	mu          sync.Mutex
	settings    config.Settings
	enabled     bool
	closed      bool
	views       map[string]*viewState
	refreshStop chan struct{}
	wg          sync.WaitGroup
}

// NewEngine creates an engine. The pipeline starts enabled; views must be
// opened before they decorate.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Matcher == nil {
		cfg.Matcher = permalink.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		matcher:    cfg.Matcher,
		resolver:   cfg.Resolver,
		sink:       cfg.Sink,
		log:        cfg.Logger,
		onSnapshot: cfg.OnSnapshot,
		now:        cfg.Clock,
		ctx:        ctx,
		cancelAll:  cancel,
		settings:   cfg.Settings,
		enabled:    true,
		views:      make(map[string]*viewState),
	}
	e.mu.Lock()
	e.updateRefreshLocked(false)
	e.mu.Unlock()
	return e
}

// OpenView registers a document and, when the pipeline is enabled, scans
// it immediately.
func (e *Engine) OpenView(doc Document) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	v := &viewState{doc: doc}
	e.views[doc.ID()] = v
	var gen uint64
	if e.enabled {
		gen = e.supersedeLocked(v)
	}
	e.mu.Unlock()

	if gen > 0 {
		go e.runScan(doc.ID(), gen)
	}
}

// CloseView drops a view and retracts its layers.
func (e *Engine) CloseView(viewID string) {
	e.mu.Lock()
	v, ok := e.views[viewID]
	if ok {
		e.supersedeLocked(v)
		delete(e.views, viewID)
	}
	sink := e.sink
	e.mu.Unlock()

	if ok && sink != nil {
		for _, layer := range AllLayers {
			sink.Clear(viewID, layer)
		}
	}
}

// DocumentChanged notes an edit. The scan runs after the debounce quiet
// window; every further change within the window pushes it out again.
func (e *Engine) DocumentChanged(viewID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.enabled {
		return
	}
	v, ok := e.views[viewID]
	if !ok {
		return
	}
	gen := e.supersedeLocked(v)
	id := viewID
	v.debounce = time.AfterFunc(e.settings.Debounce, func() {
		e.runScan(id, gen)
	})
}

// ViewFocused rescans a view immediately, with no debounce.
func (e *Engine) ViewFocused(viewID string) {
	e.mu.Lock()
	if e.closed || !e.enabled {
		e.mu.Unlock()
		return
	}
	v, ok := e.views[viewID]
	if !ok {
		e.mu.Unlock()
		return
	}
	gen := e.supersedeLocked(v)
	e.mu.Unlock()

	go e.runScan(viewID, gen)
}

// UpdateSettings swaps the settings projection and rescans every view
// immediately so style and content changes take effect at once.
func (e *Engine) UpdateSettings(s config.Settings) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.settings = s
	e.updateRefreshLocked(true)
	scans := e.supersedeAllLocked()
	e.mu.Unlock()

	for id, gen := range scans {
		go e.runScan(id, gen)
	}
}

// Settings returns the current projection.
func (e *Engine) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// RefreshAll rescans every view. The periodic relative-time refresh and
// the cache-clear command both land here.
func (e *Engine) RefreshAll() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	scans := e.supersedeAllLocked()
	e.mu.Unlock()

	for id, gen := range scans {
		go e.runScan(id, gen)
	}
}

// ClearCaches empties the object caches and refetches everything on
// display.
func (e *Engine) ClearCaches() {
	e.resolver.Cache().ClearAll()
	e.RefreshAll()
}

// SetEnabled toggles the pipeline. Disabling retracts every layer on every
// view before returning; enabling rescans everything.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	if e.closed || e.enabled == enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = enabled
	e.updateRefreshLocked(false)

	if enabled {
		scans := e.supersedeAllLocked()
		e.mu.Unlock()
		for id, gen := range scans {
			go e.runScan(id, gen)
		}
		return
	}

	// Invalidate in-flight scans, then retract synchronously.
	cleared := make([]*Snapshot, 0, len(e.views))
	ids := make([]string, 0, len(e.views))
	for id, v := range e.views {
		e.supersedeLocked(v)
		snap := &Snapshot{ViewID: id, Version: v.doc.Version(), Generation: v.generation, CreatedAt: e.now()}
		v.snapshot = snap
		v.applied = v.generation
		cleared = append(cleared, snap)
		ids = append(ids, id)
	}
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		for _, id := range ids {
			for _, layer := range AllLayers {
				sink.Clear(id, layer)
			}
		}
	}
	if e.onSnapshot != nil {
		for _, snap := range cleared {
			e.onSnapshot(snap)
		}
	}
}

// Enabled reports whether the pipeline is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Snapshot returns the last committed snapshot for a view, nil before the
// first commit.
func (e *Engine) Snapshot(viewID string) *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[viewID]; ok {
		return v.snapshot
	}
	return nil
}

// Close stops the engine: timers stopped, in-flight scans canceled and
// waited for, bounded by stopTimeout.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, v := range e.views {
		e.supersedeLocked(v)
	}
	e.updateRefreshLocked(false)
	e.mu.Unlock()

	e.cancelAll()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		e.log.Warnw("timed out waiting for scans to stop")
	}
}

// supersedeLocked invalidates whatever is pending or in flight for a view
// and issues the next generation. Caller holds e.mu.
func (e *Engine) supersedeLocked(v *viewState) uint64 {
	if v.debounce != nil {
		v.debounce.Stop()
		v.debounce = nil
	}
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
	return v.generation
}

// supersedeAllLocked issues a fresh generation for every view. Caller
// holds e.mu; only call while enabled.
func (e *Engine) supersedeAllLocked() map[string]uint64 {
	if !e.enabled {
		return nil
	}
	scans := make(map[string]uint64, len(e.views))
	for id, v := range e.views {
		scans[id] = e.supersedeLocked(v)
	}
	return scans
}

// updateRefreshLocked starts or stops the periodic refresh to match the
// current state: it runs only while enabled and showing relative time.
// Caller holds e.mu.
func (e *Engine) updateRefreshLocked(restart bool) {
	want := !e.closed && e.enabled && e.settings.Inline.Enabled &&
		e.settings.Inline.UseRelativeTime && e.settings.RefreshInterval > 0

	if e.refreshStop != nil && (restart || !want) {
		close(e.refreshStop)
		e.refreshStop = nil
	}
	if want && e.refreshStop == nil {
		stop := make(chan struct{})
		e.refreshStop = stop
		e.wg.Add(1)
		go e.refreshLoop(e.settings.RefreshInterval, stop)
	}
}

func (e *Engine) refreshLoop(interval time.Duration, stop chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.RefreshAll()
		}
	}
}

// runScan guards a scan with the engine's lifecycle accounting.
func (e *Engine) runScan(viewID string, gen uint64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	e.scan(viewID, gen)
}

// scan runs one generation of the pipeline for one view: snapshot the
// text, find matches, resolve them all concurrently, and commit.
func (e *Engine) scan(viewID string, gen uint64) {
	e.mu.Lock()
	if e.closed || !e.enabled {
		e.mu.Unlock()
		return
	}
	v, ok := e.views[viewID]
	if !ok || gen != v.generation {
		e.mu.Unlock()
		return
	}
	doc := v.doc
	settings := e.settings
	now := e.now()
	ctx, cancel := context.WithCancel(e.ctx)
	v.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	text := doc.Text()
	version := doc.Version()
	matches := e.matcher.FindAll(text)

	builder := NewSnapshotBuilder(viewID, version, gen, text, settings, now)
	if len(matches) > 0 {
		// All matches resolve together; the scan costs one round trip,
		// not one per link.
		states := make([]LinkState, len(matches))
		var wg sync.WaitGroup
		for i := range matches {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				states[i] = e.resolveMatch(ctx, matches[i], settings)
			}(i)
		}
		wg.Wait()
		for i := range states {
			builder.Add(states[i])
		}
	}

	e.commit(viewID, gen, builder.Build())
}

// resolveMatch resolves one link. A failure is recorded on the state and
// never aborts the surrounding scan.
func (e *Engine) resolveMatch(ctx context.Context, m permalink.Match, settings config.Settings) LinkState {
	state := LinkState{Match: m}
	link := m.Link

	var err error
	if link.IsThreadLink() {
		var thread model.Thread
		thread, err = e.resolver.Thread(ctx, link.ChannelID, link.ThreadTS)
		if err == nil {
			state.Message = thread.Parent
			state.ReplyCount = thread.Parent.ReplyCount
			if state.ReplyCount == 0 {
				state.ReplyCount = len(thread.Replies)
			}
		}
	} else {
		state.Message, err = e.resolver.Message(ctx, link.ChannelID, link.Timestamp)
		state.ReplyCount = state.Message.ReplyCount
	}
	if err != nil {
		e.log.Warnw("link resolution failed",
			"channel", link.ChannelID, "ts", link.Timestamp, "error", err)
		state.Err = err
		return state
	}

	state.IssueRef = preview.ExtractIssueRef(&state.Message, settings.IssueBotName)

	// Author and channel are independent; fetch them together.
	var wg sync.WaitGroup
	if settings.Inline.ShowUser && state.Message.AuthorID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if u, uerr := e.resolver.User(ctx, state.Message.AuthorID); uerr == nil {
				state.Author = &u
			} else {
				e.log.Debugw("author lookup failed", "user", state.Message.AuthorID, "error", uerr)
			}
		}()
	}
	if settings.Inline.ShowChannelName {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c, cerr := e.resolver.Channel(ctx, link.ChannelID); cerr == nil {
				state.Channel = &c
			} else {
				e.log.Debugw("channel lookup failed", "channel", link.ChannelID, "error", cerr)
			}
		}()
	}
	wg.Wait()
	return state
}

// commit applies a finished snapshot unless something newer superseded it
// while it was resolving.
func (e *Engine) commit(viewID string, gen uint64, snap *Snapshot) {
	e.mu.Lock()
	if e.closed || !e.enabled {
		e.mu.Unlock()
		return
	}
	v, ok := e.views[viewID]
	if !ok || gen != v.generation || gen <= v.applied {
		e.mu.Unlock()
		return
	}
	if v.doc.Version() != snap.Version {
		// The document moved on; the change event will bring its own scan.
		e.mu.Unlock()
		return
	}
	v.applied = gen
	v.snapshot = snap
	sink := e.sink
	e.mu.Unlock()

	// Per-view apply ordering: a newer commit may have already run, in
	// which case this one must not touch the sink.
	v.applyMu.Lock()
	defer v.applyMu.Unlock()
	e.mu.Lock()
	stillLatest := v.applied == gen
	e.mu.Unlock()
	if !stillLatest {
		return
	}

	if sink != nil {
		for _, layer := range AllLayers {
			if anns := snap.Layers[layer]; len(anns) > 0 {
				sink.Apply(viewID, layer, anns)
			} else {
				sink.Clear(viewID, layer)
			}
		}
	}
	if e.onSnapshot != nil {
		e.onSnapshot(snap)
	}
}
