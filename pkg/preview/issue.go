package preview

import (
	"regexp"
	"strings"

	"threadlens/pkg/model"
)

// issueRefPattern matches tracker identifiers like "ENG-123". Team keys
// may carry digits after the first letter ("E2E-12"); a bare single
// letter may not.
var issueRefPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// ExtractIssueRef pulls the first tracker reference out of a message. When
// the message was posted by the configured issue bot, attachment URLs are
// scanned before body text, since the bot links issues it rarely names in
// prose. Returns "" when nothing matches.
func ExtractIssueRef(msg *model.Message, botName string) string {
	if msg == nil {
		return ""
	}
	if botName != "" && msg.Bot != nil && strings.EqualFold(msg.Bot.Name, botName) {
		for _, att := range msg.Attachments {
			if ref := issueRefPattern.FindString(att.FromURL); ref != "" {
				return ref
			}
			if ref := issueRefPattern.FindString(att.TitleLink); ref != "" {
				return ref
			}
		}
	}
	return issueRefPattern.FindString(msg.Text)
}

// FindAllIssueRefs returns every tracker reference in text, deduplicated in
// first-seen order.
func FindAllIssueRefs(text string) []string {
	raw := issueRefPattern.FindAllString(text, -1)
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, ref := range raw {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
