// Package bridge runs the websocket daemon editor plugins talk to. Each
// connection gets its own decoration engine and settings projection;
// document lifecycle and settings flow client to server, decoration
// batches and RPC answers flow back.
package bridge

import (
	"encoding/json"
	"time"

	"threadlens/pkg/config"
	"threadlens/pkg/decor"
)

// Client-to-server message types.
const (
	TypeOpen     = "open"
	TypeChange   = "change"
	TypeFocus    = "focus"
	TypeClose    = "close"
	TypeSettings = "settings"
	TypeHover    = "hover"
	TypeCommand  = "command"
	TypePing     = "ping"
)

// Server-to-client message types.
const (
	TypeDecorations   = "decorations"
	TypeCleared       = "cleared"
	TypeHoverResult   = "hoverResult"
	TypeCommandResult = "commandResult"
	TypePong          = "pong"
)

// Command names the bridge understands.
const (
	CmdCacheClear        = "cache.clear"
	CmdDecorationsToggle = "decorations.toggle"
	CmdCommentBuild      = "comment.build"
	CmdTrackerStatus     = "tracker.status"
	CmdTrackerComment    = "tracker.comment"
)

// ClientMessage is the envelope for everything a plugin sends. Fields
// beyond Type are set per message type; ID correlates hover and command
// requests with their results.
type ClientMessage struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Doc      *DocPayload     `json:"doc,omitempty"`
	DocID    string          `json:"doc_id,omitempty"`
	Text     string          `json:"text,omitempty"`
	Version  int             `json:"version,omitempty"`
	Offset   int             `json:"offset,omitempty"`
	Name     string          `json:"name,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Settings *SettingsPatch  `json:"settings,omitempty"`
}

// DocPayload describes a document being opened.
type DocPayload struct {
	ID      string `json:"id"`
	URI     string `json:"uri,omitempty"`
	Text    string `json:"text"`
	Version int    `json:"version"`
}

// WireAnnotation is one positioned decoration as the plugin receives it.
// Bucket is set on the age layers only.
type WireAnnotation struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	EndLine int    `json:"end_line"`
	EndCol  int    `json:"end_col"`
	Text    string `json:"text,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
}

// LayerBatch groups one layer's annotations inside a decorations push.
type LayerBatch struct {
	Layer       string           `json:"layer"`
	Annotations []WireAnnotation `json:"annotations"`
}

// DecorationsMessage replaces every decoration on a document in one step.
type DecorationsMessage struct {
	Type    string       `json:"type"`
	DocID   string       `json:"doc_id"`
	Version int          `json:"version"`
	Layers  []LayerBatch `json:"layers"`
}

// ClearedMessage retracts every decoration on a document.
type ClearedMessage struct {
	Type  string `json:"type"`
	DocID string `json:"doc_id"`
}

// HoverResultMessage answers a hover request. Found is false when no link
// contains the offset.
type HoverResultMessage struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Found    bool     `json:"found"`
	Markdown string   `json:"markdown,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

// CommandResultMessage answers a command request. A failed command sets
// OK false and Error; the connection stays open either way.
type CommandResultMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PongMessage answers a ping.
type PongMessage struct {
	Type string `json:"type"`
}

// SettingsPatch is a partial settings update. Only the fields a plugin
// sends change; everything else keeps its current value.
type SettingsPatch struct {
	Inline     *InlinePatch    `json:"inline,omitempty"`
	Hover      *HoverPatch     `json:"hover,omitempty"`
	Highlight  *HighlightPatch `json:"highlight,omitempty"`
	IssueBot   *string         `json:"issue_bot,omitempty"`
	DebounceMS *int            `json:"debounce_ms,omitempty"`
}

// InlinePatch overrides inline-preview settings.
type InlinePatch struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	ShowTime        *bool   `json:"show_time,omitempty"`
	UseRelativeTime *bool   `json:"use_relative_time,omitempty"`
	ShowUser        *bool   `json:"show_user,omitempty"`
	ShowChannelName *bool   `json:"show_channel_name,omitempty"`
	MaxLength       *int    `json:"max_length,omitempty"`
	Color           *string `json:"color,omitempty"`
	FontStyle       *string `json:"font_style,omitempty"`
}

// HoverPatch overrides hover-card settings.
type HoverPatch struct {
	ShowChannel  *bool `json:"show_channel,omitempty"`
	ShowFiles    *bool `json:"show_files,omitempty"`
	ShowFileInfo *bool `json:"show_file_info,omitempty"`
	QuoteLength  *int  `json:"quote_length,omitempty"`
}

// HighlightPatch overrides age-highlight settings.
type HighlightPatch struct {
	Enabled    *bool   `json:"enabled,omitempty"`
	OldDays    *int    `json:"old_days,omitempty"`
	TodayColor *string `json:"today_color,omitempty"`
	OldColor   *string `json:"old_color,omitempty"`
}

// ApplyTo overlays the patch onto a settings value.
func (p *SettingsPatch) ApplyTo(s *config.Settings) {
	if p == nil {
		return
	}
	if in := p.Inline; in != nil {
		setBool(&s.Inline.Enabled, in.Enabled)
		setBool(&s.Inline.ShowTime, in.ShowTime)
		setBool(&s.Inline.UseRelativeTime, in.UseRelativeTime)
		setBool(&s.Inline.ShowUser, in.ShowUser)
		setBool(&s.Inline.ShowChannelName, in.ShowChannelName)
		setInt(&s.Inline.MaxLength, in.MaxLength)
		setString(&s.Inline.Color, in.Color)
		setString(&s.Inline.FontStyle, in.FontStyle)
	}
	if h := p.Hover; h != nil {
		setBool(&s.Hover.ShowChannel, h.ShowChannel)
		setBool(&s.Hover.ShowFiles, h.ShowFiles)
		setBool(&s.Hover.ShowFileInfo, h.ShowFileInfo)
		setInt(&s.Hover.QuoteLength, h.QuoteLength)
	}
	if hl := p.Highlight; hl != nil {
		setBool(&s.Highlight.Enabled, hl.Enabled)
		setInt(&s.Highlight.OldDays, hl.OldDays)
		if s.Highlight.OldDays < 1 {
			s.Highlight.OldDays = 1
		}
		setString(&s.Highlight.TodayColor, hl.TodayColor)
		setString(&s.Highlight.OldColor, hl.OldColor)
	}
	setString(&s.IssueBotName, p.IssueBot)
	if p.DebounceMS != nil && *p.DebounceMS >= 0 {
		s.Debounce = time.Duration(*p.DebounceMS) * time.Millisecond
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// bucketFor maps an age layer to its wire bucket name.
func bucketFor(layer decor.Layer) string {
	switch layer {
	case decor.LayerAgeToday:
		return "today"
	case decor.LayerAgeOld:
		return "old"
	default:
		return ""
	}
}

// batchesFrom flattens a snapshot's layers into wire batches, in layer
// application order. Empty layers are omitted.
func batchesFrom(snap *decor.Snapshot) []LayerBatch {
	var batches []LayerBatch
	for _, layer := range decor.AllLayers {
		anns := snap.Layers[layer]
		if len(anns) == 0 {
			continue
		}
		wire := make([]WireAnnotation, len(anns))
		for i, a := range anns {
			wire[i] = WireAnnotation{
				Start:   a.Start,
				End:     a.End,
				Line:    a.StartPos.Line,
				Col:     a.StartPos.Col,
				EndLine: a.EndPos.Line,
				EndCol:  a.EndPos.Col,
				Text:    a.Text,
				Bucket:  bucketFor(layer),
			}
		}
		batches = append(batches, LayerBatch{Layer: string(layer), Annotations: wire})
	}
	return batches
}
