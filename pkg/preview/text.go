// Package preview provides the pure formatting helpers behind inline
// decorations, hover content, and the status bar.
package preview

import (
	"fmt"
	"regexp"
	"strings"
)

// Default truncation lengths. The status bar gets more room than the inline
// decoration and hover quote; the two surfaces are tuned independently.
const (
	DefaultStatusLen = 100
	DefaultInlineLen = 50
)

// Precompiled patterns for chat markup handling.
var (
	// Newlines plus surrounding whitespace collapse to one space.
	newlineRun = regexp.MustCompile(`[ \t]*(?:\r\n?|\n)[ \t\r\n]*`)
	// Bold: *text* (word boundary aware on the left).
	markupBold = regexp.MustCompile(`(^|[\s\n({\[])\*([^*\n]+)\*`)
	// Italic: _text_.
	markupItalic = regexp.MustCompile(`(^|[\s\n({\[])_([^_\n]+)_`)
	// Strikethrough: ~text~.
	markupStrike = regexp.MustCompile(`~([^~\n]+)~`)
	// Inline code: `text`.
	markupCode = regexp.MustCompile("`([^`\n]+)`")
	// Links with display text: <url|text>.
	markupLinkText = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]+)>`)
	// Bare links: <url>.
	markupLinkBare = regexp.MustCompile(`<(https?://[^>]+)>`)
	// Channel references: <#C123|channel> and <#C123>.
	markupChannelText = regexp.MustCompile(`<#[A-Z0-9]+\|([^>]+)>`)
	markupChannelBare = regexp.MustCompile(`<#([A-Z0-9]+)>`)
	// User mentions: <@U123>.
	markupUser = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	// Special mentions: <!here>, <!channel>, <!everyone>.
	markupSpecial = regexp.MustCompile(`<!(\w+)>`)
)

// Truncate flattens text to a single line and hard-cuts it at max runes.
// Newlines collapse to single spaces, the result is trimmed, and anything
// longer than max becomes the first max-3 runes plus "...".
func Truncate(text string, max int) string {
	flat := strings.TrimSpace(newlineRun.ReplaceAllString(text, " "))
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	return string(runes[:max-3]) + "..."
}

// Quote truncates text to max runes and prefixes it as a markdown quote.
func Quote(text string, max int) string {
	return "> " + Truncate(text, max)
}

// StripMarkup converts chat markup to plain text for single-line previews.
// Code fences are dropped, formatting markers removed, and bracketed refs
// reduced to their labels.
func StripMarkup(s string) string {
	s = strings.ReplaceAll(s, "```", "")
	s = markupChannelText.ReplaceAllString(s, "#$1")
	s = markupChannelBare.ReplaceAllString(s, "#$1")
	s = markupUser.ReplaceAllString(s, "@$1")
	s = markupSpecial.ReplaceAllString(s, "@$1")
	s = markupLinkText.ReplaceAllString(s, "$2")
	s = markupLinkBare.ReplaceAllString(s, "$1")
	s = markupCode.ReplaceAllString(s, "$1")
	s = markupStrike.ReplaceAllString(s, "$1")
	s = markupBold.ReplaceAllString(s, "${1}$2")
	s = markupItalic.ReplaceAllString(s, "${1}$2")
	return s
}

// MarkupToMarkdown converts chat markup to standard markdown for the hover
// body. Input is split on code-fence boundaries so fenced segments pass
// through untouched.
func MarkupToMarkdown(s string) string {
	parts := strings.Split(s, "```")
	for i, part := range parts {
		if i%2 == 0 {
			parts[i] = convertSegment(part)
		}
	}
	return strings.Join(parts, "```")
}

// convertSegment transforms one segment known to be outside code fences.
// Order matters: channel refs before bare links, both use angle brackets.
func convertSegment(s string) string {
	s = markupChannelText.ReplaceAllString(s, "#$1")
	s = markupChannelBare.ReplaceAllString(s, "#$1")
	s = markupUser.ReplaceAllString(s, "@$1")
	s = markupSpecial.ReplaceAllStringFunc(s, func(match string) string {
		inner := markupSpecial.FindStringSubmatch(match)
		switch inner[1] {
		case "here", "channel", "everyone":
			return "@" + inner[1]
		}
		return match
	})
	s = markupLinkText.ReplaceAllString(s, "[$2]($1)")
	s = markupLinkBare.ReplaceAllString(s, "$1")
	s = markupStrike.ReplaceAllString(s, "~~$1~~")
	s = markupBold.ReplaceAllString(s, "${1}**$2**")
	return s
}

// ReplyCountSuffix renders a thread's reply count for inline previews.
func ReplyCountSuffix(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return " [1 reply]"
	default:
		return fmt.Sprintf(" [%d replies]", n)
	}
}
