package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"threadlens/pkg/decor"
)

// LayerMsg carries one layer update from the engine. Nil annotations
// retract the layer.
type LayerMsg struct {
	ViewID      string
	Layer       decor.Layer
	Annotations []decor.Annotation
}

// SnapshotMsg delivers a completed scan.
type SnapshotMsg struct {
	Snapshot *decor.Snapshot
}

// ProgramSink forwards engine output into the running bubbletea program.
// The engine starts before the program does, and tea.Program.Send blocks
// until the event loop is up, so messages sent before Attach are buffered
// and flushed on Attach.
type ProgramSink struct {
	mu      sync.Mutex
	p       *tea.Program
	pending []tea.Msg
}

// NewProgramSink creates a detached sink.
func NewProgramSink() *ProgramSink {
	return &ProgramSink{}
}

// Attach connects the running program and flushes buffered messages.
func (s *ProgramSink) Attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, msg := range pending {
		p.Send(msg)
	}
}

func (s *ProgramSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	if p == nil {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	p.Send(msg)
}

// Apply implements decor.Sink.
func (s *ProgramSink) Apply(viewID string, layer decor.Layer, anns []decor.Annotation) {
	s.send(LayerMsg{ViewID: viewID, Layer: layer, Annotations: anns})
}

// Clear implements decor.Sink.
func (s *ProgramSink) Clear(viewID string, layer decor.Layer) {
	s.send(LayerMsg{ViewID: viewID, Layer: layer})
}

// Snapshot is the engine's OnSnapshot hook.
func (s *ProgramSink) Snapshot(snap *decor.Snapshot) {
	s.send(SnapshotMsg{Snapshot: snap})
}
