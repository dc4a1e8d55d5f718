package bridge

import (
	"sync"

	"threadlens/pkg/config"
	"threadlens/pkg/decor"
)

// bufferDoc is a client-owned text buffer. The plugin is the source of
// truth; text and version only move on its messages.
type bufferDoc struct {
	id  string
	uri string

	mu      sync.Mutex
	text    string
	version int
}

func (d *bufferDoc) ID() string { return d.id }

func (d *bufferDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *bufferDoc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *bufferDoc) update(text string, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.version = version
}

// session holds one connection's engine, settings projection, and open
// documents. Sessions never share engines; the resolver and its cache
// behind them are daemon-wide.
type session struct {
	id  string
	eng *decor.Engine

	mu       sync.Mutex
	settings config.Settings
	docs     map[string]*bufferDoc
}

func newSession(id string, eng *decor.Engine, settings config.Settings) *session {
	return &session{
		id:       id,
		eng:      eng,
		settings: settings,
		docs:     make(map[string]*bufferDoc),
	}
}

// open registers a document, or replaces its contents when the plugin
// re-opens one it already announced.
func (s *session) open(p DocPayload) {
	s.mu.Lock()
	doc, exists := s.docs[p.ID]
	if exists {
		doc.update(p.Text, p.Version)
	} else {
		doc = &bufferDoc{id: p.ID, uri: p.URI, text: p.Text, version: p.Version}
		s.docs[p.ID] = doc
	}
	s.mu.Unlock()

	if exists {
		s.eng.DocumentChanged(p.ID)
		return
	}
	s.eng.OpenView(doc)
}

// change applies an edit. Unknown documents are ignored; the plugin will
// re-open after a desync.
func (s *session) change(docID, text string, version int) bool {
	s.mu.Lock()
	doc, ok := s.docs[docID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	doc.update(text, version)
	s.eng.DocumentChanged(docID)
	return true
}

func (s *session) focus(docID string) {
	s.eng.ViewFocused(docID)
}

func (s *session) closeDoc(docID string) bool {
	s.mu.Lock()
	_, ok := s.docs[docID]
	delete(s.docs, docID)
	s.mu.Unlock()
	if ok {
		s.eng.CloseView(docID)
	}
	return ok
}

// applySettings overlays a patch and pushes the merged projection into
// the engine, which rescans every open document.
func (s *session) applySettings(patch *SettingsPatch) {
	s.mu.Lock()
	patch.ApplyTo(&s.settings)
	merged := s.settings
	s.mu.Unlock()

	s.eng.UpdateSettings(merged)
}

// close tears the session down with its engine.
func (s *session) close() {
	s.eng.Close()
}
