package ui

import (
	"fmt"
	"strings"

	"threadlens/pkg/decor"
	"threadlens/pkg/preview"
)

// LinkItem wraps one resolved link for the sidebar list. Line is the
// 0-based source line of the match, computed when the snapshot lands;
// it renders 1-based.
type LinkItem struct {
	State decor.LinkState
	Index int
	Line  int
}

func (i LinkItem) Title() string {
	if i.State.Err != nil {
		return i.State.Match.Link.Raw
	}
	if i.State.Preview != "" {
		return i.State.Preview
	}
	return i.State.Match.Link.Raw
}

func (i LinkItem) Description() string {
	if i.State.Err != nil {
		return fmt.Sprintf("unresolved: %v", i.State.Err)
	}
	parts := []string{fmt.Sprintf("L%d", i.Line+1)}
	if i.State.Channel != nil && i.State.Channel.Name != "" {
		parts = append(parts, "#"+i.State.Channel.Name)
	}
	if t, ok := preview.TimestampTime(i.State.Message.Timestamp); ok {
		parts = append(parts, preview.AbsoluteTime(t))
	}
	if i.State.ReplyCount > 0 {
		parts = append(parts, strings.TrimSpace(preview.ReplyCountSuffix(i.State.ReplyCount)))
	}
	if i.State.IssueRef != "" {
		parts = append(parts, i.State.IssueRef)
	}
	return strings.Join(parts, " · ")
}

func (i LinkItem) FilterValue() string {
	var sb strings.Builder
	sb.WriteString(i.State.Message.Text)
	if i.State.Channel != nil {
		sb.WriteString(" ")
		sb.WriteString(i.State.Channel.Name)
	}
	if i.State.Author != nil {
		sb.WriteString(" ")
		sb.WriteString(i.State.Author.DisplayLabel())
	}
	if i.State.IssueRef != "" {
		sb.WriteString(" ")
		sb.WriteString(i.State.IssueRef)
	}
	sb.WriteString(" ")
	sb.WriteString(i.State.Match.Link.ChannelID)
	return sb.String()
}
