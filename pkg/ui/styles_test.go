package ui

import (
	"io"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"threadlens/pkg/config"
	"threadlens/pkg/preview"
)

func testStyles() Styles {
	return NewStyles(lipgloss.NewRenderer(io.Discard), config.DefaultSettings())
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		fallback string
		want     string
	}{
		{"hex passthrough", "#AABBCC", "#000000", "#AABBCC"},
		{"short hex", "#FFF", "#000000", "#FFF"},
		{"bad hex length", "#AABB", "#123456", "#123456"},
		{"rgb", "rgb(255, 0, 128)", "#000000", "#FF0080"},
		{"rgba drops alpha", "rgba(128,128,128,0.6)", "#000000", "#808080"},
		{"component out of range", "rgb(300,0,0)", "#111111", "#111111"},
		{"negative component", "rgb(-1,0,0)", "#111111", "#111111"},
		{"too few components", "rgb(1,2)", "#222222", "#222222"},
		{"not a color", "teal-ish", "#222222", "#222222"},
		{"empty", "", "#333333", "#333333"},
		{"whitespace tolerated", "  rgb( 1 , 2 , 3 )  ", "#000000", "#010203"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseColor(tc.in, tc.fallback)
			if string(got) != tc.want {
				t.Errorf("ParseColor(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAgeStyle(t *testing.T) {
	s := testStyles()

	if _, ok := s.AgeStyle(preview.AgeToday); !ok {
		t.Error("AgeToday should have a tint")
	}
	if _, ok := s.AgeStyle(preview.AgeOld); !ok {
		t.Error("AgeOld should have a tint")
	}
	if _, ok := s.AgeStyle(preview.AgeRecent); ok {
		t.Error("AgeRecent should render plain")
	}
}

func TestNewStyles_UsesSettingsColors(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Inline.Color = "#123456"
	settings.Inline.FontStyle = "italic"

	s := NewStyles(lipgloss.NewRenderer(io.Discard), settings)

	if got := s.InlinePreview.GetForeground(); got != lipgloss.Color("#123456") {
		t.Errorf("InlinePreview foreground = %v, want #123456", got)
	}
	if !s.InlinePreview.GetItalic() {
		t.Error("italic font style should set Italic")
	}

	settings.Inline.FontStyle = "normal"
	s = NewStyles(lipgloss.NewRenderer(io.Discard), settings)
	if s.InlinePreview.GetItalic() {
		t.Error("normal font style should not set Italic")
	}
}
