package decor

import (
	"context"
	"fmt"
	"strings"

	"threadlens/pkg/config"
	"threadlens/pkg/model"
	"threadlens/pkg/permalink"
	"threadlens/pkg/preview"
)

// Action identifies an affordance a front end can offer on a hover card.
type Action string

const (
	ActionInsertComment  Action = "insert-comment"
	ActionCopyPreview    Action = "copy-preview"
	ActionOpenLink       Action = "open-link"
	ActionTrackerComment Action = "tracker-comment"
)

// Hover is the rendered card for one link under the cursor.
type Hover struct {
	Markdown string          `json:"markdown"`
	Match    permalink.Match `json:"match"`
	IssueRef string          `json:"issue_ref,omitempty"`
	Issue    *model.Issue    `json:"issue,omitempty"`
	Actions  []Action        `json:"actions"`
}

// HoverAt builds the hover card for the link containing the byte offset.
// It returns ok=false only when there is nothing to hover: pipeline
// disabled, unknown view, or no link at the offset. A resolution failure
// still returns a card carrying the error text.
func (e *Engine) HoverAt(ctx context.Context, viewID string, offset int) (*Hover, bool) {
	e.mu.Lock()
	if e.closed || !e.enabled {
		e.mu.Unlock()
		return nil, false
	}
	v, ok := e.views[viewID]
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	doc := v.doc
	settings := e.settings
	e.mu.Unlock()

	m, ok := e.matcher.At(doc.Text(), offset)
	if !ok {
		return nil, false
	}

	h := &Hover{Match: m}
	link := m.Link

	msg, replyCount, err := e.fetchLinkTarget(ctx, link)
	if err != nil {
		h.Markdown = fmt.Sprintf("Could not load message: %v", err)
		h.Actions = []Action{ActionOpenLink}
		return h, true
	}

	var author *model.User
	if msg.AuthorID != "" {
		if u, uerr := e.resolver.User(ctx, msg.AuthorID); uerr == nil {
			author = &u
		}
	}
	var channel *model.Channel
	if settings.Hover.ShowChannel {
		if c, cerr := e.resolver.Channel(ctx, link.ChannelID); cerr == nil {
			channel = &c
		}
	}

	h.IssueRef = preview.ExtractIssueRef(&msg, settings.IssueBotName)
	if h.IssueRef != "" && e.resolver.HasTracker() {
		if issue, ierr := e.resolver.Issue(ctx, h.IssueRef); ierr == nil {
			h.Issue = &issue
		}
	}

	h.Markdown = hoverMarkdown(msg, author, channel, replyCount, h.IssueRef, h.Issue, settings)

	h.Actions = []Action{ActionInsertComment, ActionCopyPreview, ActionOpenLink}
	if h.IssueRef != "" && e.resolver.HasTracker() {
		h.Actions = append(h.Actions, ActionTrackerComment)
	}
	return h, true
}

// BuildComment renders the message behind the link at offset as a
// line-comment block for insertion into source. The leader is the host
// language's line-comment prefix; empty defaults to "//".
func (e *Engine) BuildComment(ctx context.Context, viewID string, offset int, leader string) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("engine closed")
	}
	v, ok := e.views[viewID]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("unknown view %q", viewID)
	}
	doc := v.doc
	e.mu.Unlock()

	m, ok := e.matcher.At(doc.Text(), offset)
	if !ok {
		return "", fmt.Errorf("no message link at offset %d", offset)
	}

	msg, _, err := e.fetchLinkTarget(ctx, m.Link)
	if err != nil {
		return "", err
	}

	label := "someone"
	if msg.AuthorID != "" {
		if u, uerr := e.resolver.User(ctx, msg.AuthorID); uerr == nil {
			label = u.DisplayLabel()
		}
	}

	if leader == "" {
		leader = "//"
	}
	var b strings.Builder
	when := ""
	if t, ok := preview.TimestampTime(msg.Timestamp); ok {
		when = " (" + preview.AbsoluteTime(t) + ")"
	}
	fmt.Fprintf(&b, "%s %s%s:\n", leader, label, when)
	body := preview.StripMarkup(msg.Text)
	if body == "" && len(msg.Files) > 0 {
		body = "(file)"
	}
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintf(&b, "%s %s\n", leader, line)
	}
	fmt.Fprintf(&b, "%s %s\n", leader, m.Link.Raw)
	return b.String(), nil
}

// fetchLinkTarget resolves the message a link points at: the thread parent
// for thread links, the single message otherwise.
func (e *Engine) fetchLinkTarget(ctx context.Context, link permalink.Permalink) (model.Message, int, error) {
	if link.IsThreadLink() {
		thread, err := e.resolver.Thread(ctx, link.ChannelID, link.ThreadTS)
		if err != nil {
			return model.Message{}, 0, err
		}
		n := thread.Parent.ReplyCount
		if n == 0 {
			n = len(thread.Replies)
		}
		return thread.Parent, n, nil
	}
	msg, err := e.resolver.Message(ctx, link.ChannelID, link.Timestamp)
	if err != nil {
		return model.Message{}, 0, err
	}
	return msg, msg.ReplyCount, nil
}

// hoverMarkdown assembles the card: attribution line, quoted body, thread
// and file detail per the hover toggles, then the issue status line.
func hoverMarkdown(msg model.Message, author *model.User, channel *model.Channel, replyCount int, issueRef string, issue *model.Issue, settings config.Settings) string {
	var b strings.Builder

	head := "**" + authorLabel(msg, author) + "**"
	if channel != nil {
		head += " in **#" + channel.Name + "**"
	}
	if t, ok := preview.TimestampTime(msg.Timestamp); ok {
		head += " · " + preview.AbsoluteTime(t)
	}
	b.WriteString(head)
	b.WriteString("\n\n")

	body := preview.MarkupToMarkdown(msg.Text)
	if body == "" && len(msg.Files) > 0 {
		body = "(file)"
	}
	b.WriteString(preview.Quote(body, settings.Hover.QuoteLength))
	b.WriteString("\n")

	if replyCount > 0 {
		fmt.Fprintf(&b, "\n_%d %s in thread_\n", replyCount, plural(replyCount, "reply", "replies"))
	}

	if settings.Hover.ShowFiles && len(msg.Files) > 0 {
		b.WriteString("\n**Files**\n")
		for _, f := range msg.Files {
			b.WriteString("- " + f.Name)
			if settings.Hover.ShowFileInfo {
				detail := f.Mimetype
				if f.Size > 0 {
					if detail != "" {
						detail += ", "
					}
					detail += humanSize(f.Size)
				}
				if detail != "" {
					b.WriteString(" (" + detail + ")")
				}
			}
			b.WriteString("\n")
		}
	}

	if issueRef != "" {
		b.WriteString("\n")
		if issue != nil {
			fmt.Fprintf(&b, "**%s** %s", issue.Identifier, issue.State.Name)
			if issue.Title != "" {
				if issue.URL != "" {
					fmt.Fprintf(&b, " · [%s](%s)", issue.Title, issue.URL)
				} else {
					fmt.Fprintf(&b, " · %s", issue.Title)
				}
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "Issue **%s**\n", issueRef)
		}
	}

	return b.String()
}

func authorLabel(msg model.Message, author *model.User) string {
	if author != nil {
		return author.DisplayLabel()
	}
	if msg.Bot != nil && msg.Bot.Name != "" {
		return msg.Bot.Name
	}
	if msg.AuthorID != "" {
		return msg.AuthorID
	}
	return "someone"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// humanSize renders a byte count the way file pickers do.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
