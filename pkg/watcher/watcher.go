// Package watcher delivers change notifications for one file. Editors
// often replace files on save instead of writing in place, so the watch
// covers the parent directory and filters to the target path; debouncing
// is the decoration engine's job, not ours.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultPollInterval is used when the watched file sits on a remote
// filesystem, where inotify events routinely never arrive.
const defaultPollInterval = 2 * time.Second

// Op classifies a change to the watched file.
type Op string

const (
	OpWrite  Op = "write"
	OpCreate Op = "create"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Event is one observed change.
type Event struct {
	Path string
	Op   Op
}

// Watcher streams Events for a single file until closed.
type Watcher struct {
	path   string
	log    *zap.SugaredLogger
	fsw    *fsnotify.Watcher
	poll   time.Duration
	events chan Event
	done   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger routes watch errors to log instead of dropping them.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithPollInterval adds a stat-based poll alongside the notify watch.
// Zero leaves polling to the remote-filesystem autodetection.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.poll = d
	}
}

// New starts watching path. The returned watcher owns its goroutines;
// Close releases them.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:   abs,
		log:    zap.NewNop().Sugar(),
		fsw:    fsw,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.poll == 0 && isRemoteFilesystem(DetectFilesystemType(abs)) {
		w.log.Infow("remote filesystem detected, polling enabled",
			"path", abs, "interval", defaultPollInterval)
		w.poll = defaultPollInterval
	}
	go w.run()
	return w, nil
}

// Events returns the change feed. The channel closes when the watcher
// does.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Path returns the absolute path under watch.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watch and closes the event channel.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.fsw.Close()
}

// run fans the notify loop and the optional poll loop into the shared
// event channel, which closes only after both stop.
func (w *Watcher) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.loop()
	}()
	if w.poll > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.pollLoop()
		}()
	}
	wg.Wait()
	close(w.events)
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op, relevant := mapOp(ev.Op)
			if !relevant {
				continue
			}
			select {
			case w.events <- Event{Path: w.path, Op: op}:
			case <-w.done:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("file watch error", "path", w.path, "error", err)
		}
	}
}

// pollLoop stats the file on a ticker and reports mtime or size drift as
// a write. It backstops mounts where inotify is silent.
func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var lastMod time.Time
	var lastSize int64
	if info, err := os.Stat(w.path); err == nil {
		lastMod, lastSize = info.ModTime(), info.Size()
	}
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
				continue
			}
			lastMod, lastSize = info.ModTime(), info.Size()
			select {
			case w.events <- Event{Path: w.path, Op: OpWrite}:
			case <-w.done:
				return
			}
		}
	}
}

func mapOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		return "", false
	}
}
