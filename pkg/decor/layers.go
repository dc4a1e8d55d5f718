// Package decor implements the decoration pipeline: scanning documents for
// message permalinks, resolving them through the cache-backed clients, and
// emitting positioned annotation layers to a rendering sink.
package decor

import (
	"threadlens/pkg/permalink"
)

// Layer identifies one independently retractable decoration layer.
type Layer string

const (
	// LayerPreview carries the inline preview text over the full URL range.
	LayerPreview Layer = "preview"
	// LayerAgeToday highlights links whose message is from today.
	LayerAgeToday Layer = "age-today"
	// LayerAgeOld highlights links older than the configured threshold.
	LayerAgeOld Layer = "age-old"
	// LayerChannel substitutes the resolved channel name over the
	// channel-ID path segment.
	LayerChannel Layer = "channel-name"
)

// AllLayers lists every layer in application order.
var AllLayers = []Layer{LayerPreview, LayerAgeToday, LayerAgeOld, LayerChannel}

// Annotation is one positioned decoration. Text is the preview or channel
// name; it is empty for pure highlight layers.
type Annotation struct {
	Start    int                `json:"start"`
	End      int                `json:"end"`
	StartPos permalink.Position `json:"start_pos"`
	EndPos   permalink.Position `json:"end_pos"`
	Text     string             `json:"text,omitempty"`
}

// Sink renders annotation layers. Apply replaces the layer's previous
// contents for the view in one step; Clear removes the layer. The engine
// calls sinks from its worker goroutines, so implementations must be safe
// for concurrent use.
type Sink interface {
	Apply(viewID string, layer Layer, anns []Annotation)
	Clear(viewID string, layer Layer)
}

// Document is a text buffer under decoration. Text returns the current
// contents; Version moves forward on every change so stale scan output can
// be recognized and dropped.
type Document interface {
	ID() string
	Text() string
	Version() int
}
