package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"threadlens/pkg/config"
	"threadlens/pkg/preview"
)

var (
	// --- Palette ---
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#BD93F9"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#6272A4"}
	ColorText      = lipgloss.AdaptiveColor{Light: "#1E293B", Dark: "#F8F8F2"}
	ColorSubtext   = lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#BFBFBF"}
	ColorHighlight = lipgloss.AdaptiveColor{Light: "#E2E8F0", Dark: "#44475A"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#FF5555"}
	ColorOK        = lipgloss.AdaptiveColor{Light: "#16A34A", Dark: "#50FA7B"}
)

// Styles is the rendered style bundle for one settings projection. The
// model rebuilds it whenever settings change, so every decoration color
// tracks the configuration live.
type Styles struct {
	Renderer *lipgloss.Renderer

	App          lipgloss.Style
	Header       lipgloss.Style
	Panel        lipgloss.Style
	FocusedPanel lipgloss.Style
	StatusBar    lipgloss.Style
	StatusKey    lipgloss.Style
	Help         lipgloss.Style
	Notice       lipgloss.Style
	ErrorNotice  lipgloss.Style

	LineNumber    lipgloss.Style
	LinkText      lipgloss.Style
	SelectedLine  lipgloss.Style
	InlinePreview lipgloss.Style
	ChannelToken  lipgloss.Style
	AgeToday      lipgloss.Style
	AgeOld        lipgloss.Style

	Item         lipgloss.Style
	SelectedItem lipgloss.Style
	ColIndex     lipgloss.Style
	ColLine      lipgloss.Style
	ColChannel   lipgloss.Style
	ColAge       lipgloss.Style
	ColIssue     lipgloss.Style
	ColPreview   lipgloss.Style
	ColError     lipgloss.Style
}

// NewStyles builds the bundle from settings. The renderer decides the
// color profile, which keeps output sane in tests and dumb terminals.
func NewStyles(r *lipgloss.Renderer, settings config.Settings) Styles {
	s := Styles{Renderer: r}

	s.App = r.NewStyle().Padding(0, 0)
	s.Header = r.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Background(ColorPrimary).
		Bold(true).
		Padding(0, 1)
	s.Panel = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSecondary).
		Padding(0, 1)
	s.FocusedPanel = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1)
	s.StatusBar = r.NewStyle().Foreground(ColorSubtext)
	s.StatusKey = r.NewStyle().Foreground(ColorPrimary).Bold(true)
	s.Help = r.NewStyle().Foreground(ColorSecondary).Padding(0, 1)
	s.Notice = r.NewStyle().Foreground(ColorOK)
	s.ErrorNotice = r.NewStyle().Foreground(ColorError).Bold(true)

	s.LineNumber = r.NewStyle().Foreground(ColorSecondary).Width(4).Align(lipgloss.Right).MarginRight(1)
	s.LinkText = r.NewStyle().Foreground(ColorSecondary).Underline(true)
	s.SelectedLine = r.NewStyle().Background(ColorHighlight)

	inline := r.NewStyle().Foreground(ParseColor(settings.Inline.Color, "#808080"))
	if settings.Inline.FontStyle == "italic" {
		inline = inline.Italic(true)
	}
	s.InlinePreview = inline

	s.ChannelToken = r.NewStyle().Foreground(ColorPrimary).Bold(true)
	s.AgeToday = r.NewStyle().Background(ParseColor(settings.Highlight.TodayColor, "#665C1E"))
	s.AgeOld = r.NewStyle().Background(ParseColor(settings.Highlight.OldColor, "#3A3A3A")).
		Foreground(ColorSubtext)

	s.Item = r.NewStyle().
		PaddingLeft(1).
		PaddingRight(1).
		Border(lipgloss.HiddenBorder(), false, false, false, true).
		BorderForeground(ColorHighlight)
	s.SelectedItem = s.Item.
		Background(ColorHighlight).
		BorderForeground(ColorPrimary).
		Bold(true)
	s.ColIndex = r.NewStyle().Width(3).Foreground(ColorSecondary)
	s.ColLine = r.NewStyle().Width(6).Foreground(ColorSecondary).Bold(true)
	s.ColChannel = r.NewStyle().Width(14).Foreground(ColorPrimary)
	s.ColAge = r.NewStyle().Width(8).Foreground(ColorSubtext).Align(lipgloss.Right)
	s.ColIssue = r.NewStyle().Width(10).Foreground(ColorOK).Align(lipgloss.Right)
	s.ColPreview = r.NewStyle().Foreground(ColorText)
	s.ColError = r.NewStyle().Foreground(ColorError)
	return s
}

// AgeStyle maps an age bucket to its tint; recent messages render plain.
func (s Styles) AgeStyle(bucket preview.AgeBucket) (lipgloss.Style, bool) {
	switch bucket {
	case preview.AgeToday:
		return s.AgeToday, true
	case preview.AgeOld:
		return s.AgeOld, true
	default:
		return lipgloss.Style{}, false
	}
}

// ParseColor turns a settings color string into a terminal color. It
// accepts "#RRGGBB" and the css-style "rgb(...)"/"rgba(...)" forms the
// editor surface uses; the alpha channel has no terminal equivalent and
// is dropped. Anything unparseable falls back to the given hex.
func ParseColor(value, fallback string) lipgloss.Color {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "#") {
		if len(value) == 7 || len(value) == 4 {
			return lipgloss.Color(value)
		}
		return lipgloss.Color(fallback)
	}

	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "rgba(") || strings.HasPrefix(lower, "rgb(") {
		open := strings.IndexByte(value, '(')
		closing := strings.IndexByte(value, ')')
		if open < 0 || closing < open {
			return lipgloss.Color(fallback)
		}
		parts := strings.Split(value[open+1:closing], ",")
		if len(parts) < 3 {
			return lipgloss.Color(fallback)
		}
		rgb := make([]int, 3)
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || n < 0 || n > 255 {
				return lipgloss.Color(fallback)
			}
			rgb[i] = n
		}
		return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", rgb[0], rgb[1], rgb[2]))
	}

	return lipgloss.Color(fallback)
}
