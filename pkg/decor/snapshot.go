package decor

import (
	"time"

	"threadlens/pkg/config"
	"threadlens/pkg/model"
	"threadlens/pkg/permalink"
	"threadlens/pkg/preview"
)

// LinkState is everything one match resolved to. A failed match keeps its
// Err and produces no annotations; the rest of the scan is unaffected.
type LinkState struct {
	Match      permalink.Match
	Message    model.Message
	Author     *model.User
	Channel    *model.Channel
	ReplyCount int
	IssueRef   string
	Bucket     preview.AgeBucket
	Preview    string
	Err        error
}

// Snapshot is one scan's complete output for a view. It is immutable once
// built; the UI swaps whole snapshot pointers and never sees a half-updated
// scan.
type Snapshot struct {
	ViewID     string
	Version    int
	Generation uint64
	Links      []LinkState
	Layers     map[Layer][]Annotation
	FailCount  int
	Duration   time.Duration
	CreatedAt  time.Time
}

// IsEmpty reports whether the snapshot carries no links.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Links) == 0
}

// LinkAt returns the link whose match range contains the byte offset, or
// nil.
func (s *Snapshot) LinkAt(offset int) *LinkState {
	if s == nil {
		return nil
	}
	for i := range s.Links {
		m := s.Links[i].Match
		if offset >= m.Start && offset < m.End {
			return &s.Links[i]
		}
	}
	return nil
}

// SnapshotBuilder assembles a Snapshot from resolved link states. The
// builder owns all formatting decisions: preview text, age buckets, and
// which layers each link contributes to.
type SnapshotBuilder struct {
	viewID     string
	version    int
	generation uint64
	index      *permalink.Index
	settings   config.Settings
	now        time.Time
	started    time.Time
	links      []LinkState
}

// NewSnapshotBuilder creates a builder for one scan over the given text.
func NewSnapshotBuilder(viewID string, version int, generation uint64, text string, settings config.Settings, now time.Time) *SnapshotBuilder {
	return &SnapshotBuilder{
		viewID:     viewID,
		version:    version,
		generation: generation,
		index:      permalink.NewIndex(text),
		settings:   settings,
		now:        now,
		started:    time.Now(),
	}
}

// Add appends one resolved link state.
func (b *SnapshotBuilder) Add(state LinkState) {
	b.links = append(b.links, state)
}

// Build finishes the snapshot. Every identical link contributes its own
// annotations; N copies of one URL decorate N times.
func (b *SnapshotBuilder) Build() *Snapshot {
	layers := make(map[Layer][]Annotation, len(AllLayers))
	fails := 0

	for i := range b.links {
		state := &b.links[i]
		if state.Err != nil {
			fails++
			continue
		}

		msgTime, haveTime := preview.TimestampTime(state.Message.Timestamp)
		if haveTime {
			state.Bucket = preview.AgeOf(msgTime, b.now)
		}
		state.Preview = b.previewText(state, msgTime, haveTime)

		full := b.annotation(state.Match.Start, state.Match.End, state.Preview)
		if b.settings.Inline.Enabled {
			layers[LayerPreview] = append(layers[LayerPreview], full)
		}

		if b.settings.Highlight.Enabled && haveTime {
			highlight := b.annotation(state.Match.Start, state.Match.End, "")
			switch {
			case state.Bucket == preview.AgeToday:
				layers[LayerAgeToday] = append(layers[LayerAgeToday], highlight)
			case state.Bucket == preview.AgeOld && preview.DaysOld(msgTime, b.now) >= b.settings.Highlight.OldDays:
				layers[LayerAgeOld] = append(layers[LayerAgeOld], highlight)
			}
		}

		if b.settings.Inline.ShowChannelName && state.Channel != nil && state.Channel.Name != "" {
			ann := b.annotation(state.Match.ChannelStart, state.Match.ChannelEnd, "#"+state.Channel.Name)
			layers[LayerChannel] = append(layers[LayerChannel], ann)
		}
	}

	return &Snapshot{
		ViewID:     b.viewID,
		Version:    b.version,
		Generation: b.generation,
		Links:      b.links,
		Layers:     layers,
		FailCount:  fails,
		Duration:   time.Since(b.started),
		CreatedAt:  b.now,
	}
}

// previewText composes the inline preview for one link: the flattened
// message body, optionally prefixed with the author and suffixed with the
// time and reply count.
func (b *SnapshotBuilder) previewText(state *LinkState, msgTime time.Time, haveTime bool) string {
	inline := b.settings.Inline
	text := preview.Truncate(preview.StripMarkup(state.Message.Text), inline.MaxLength)
	if text == "" && len(state.Message.Files) > 0 {
		text = "(file)"
	}

	out := text
	if inline.ShowUser && state.Author != nil {
		out = state.Author.DisplayLabel() + ": " + out
	}
	if inline.ShowTime && haveTime {
		if inline.UseRelativeTime {
			out += " · " + preview.RelativeTime(msgTime, b.now)
		} else {
			out += " · " + preview.AbsoluteTime(msgTime)
		}
	}
	out += preview.ReplyCountSuffix(state.ReplyCount)
	return out
}

func (b *SnapshotBuilder) annotation(start, end int, text string) Annotation {
	return Annotation{
		Start:    start,
		End:      end,
		StartPos: b.index.Position(start),
		EndPos:   b.index.Position(end),
		Text:     text,
	}
}
