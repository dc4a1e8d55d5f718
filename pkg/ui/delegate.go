package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"threadlens/pkg/preview"
)

// Tier represents the width tier of the display
type Tier int

const (
	TierCompact Tier = iota
	TierNormal
	TierWide
	TierUltraWide
)

// TierFor picks the column tier for a given panel width.
func TierFor(width int) Tier {
	switch {
	case width >= 120:
		return TierUltraWide
	case width >= 90:
		return TierWide
	case width >= 60:
		return TierNormal
	default:
		return TierCompact
	}
}

// LinkDelegate renders one link per row, growing columns with the tier:
// index and line always, channel at Normal, age at Wide, issue at
// UltraWide. The preview takes whatever width is left.
type LinkDelegate struct {
	Tier   Tier
	Styles *Styles
}

func (d LinkDelegate) Height() int {
	return 1
}

func (d LinkDelegate) Spacing() int {
	return 0
}

func (d LinkDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

func (d LinkDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(LinkItem)
	if !ok || d.Styles == nil {
		return
	}
	s := d.Styles

	baseStyle := s.Item
	if index == m.Index() {
		baseStyle = s.SelectedItem
	}

	num := s.ColIndex.Render(fmt.Sprintf("%2d", i.Index+1))
	line := s.ColLine.Render(fmt.Sprintf("L%d", i.Line+1))

	channel := ""
	age := ""
	issue := ""
	extraWidth := 0

	if d.Tier >= TierNormal {
		name := ""
		if i.State.Err == nil && i.State.Channel != nil && i.State.Channel.Name != "" {
			name = "#" + i.State.Channel.Name
		}
		channel = s.ColChannel.Render(name)
		extraWidth += 14
	}

	if d.Tier >= TierWide {
		ageStr := ""
		if t, haveTime := preview.TimestampTime(i.State.Message.Timestamp); i.State.Err == nil && haveTime {
			ageStr = preview.RelativeTime(t, time.Now())
		}
		age = s.ColAge.Render(ageStr)
		extraWidth += 8
	}

	if d.Tier >= TierUltraWide {
		issue = s.ColIssue.Render(i.State.IssueRef)
		extraWidth += 10
	}

	// Fixed widths: index(3) + line(6) + extra, minus row padding.
	fixedWidth := 3 + 6 + extraWidth
	availableWidth := m.Width() - fixedWidth - 4
	if availableWidth < 10 {
		availableWidth = 10
	}

	previewStyle := s.ColPreview.Width(availableWidth).MaxWidth(availableWidth)
	if index == m.Index() {
		previewStyle = previewStyle.Foreground(ColorPrimary).Bold(true)
	}
	if i.State.Err != nil {
		previewStyle = previewStyle.Foreground(ColorError)
	}
	body := previewStyle.Render(preview.Truncate(i.Title(), availableWidth))

	parts := []string{num, line}
	if d.Tier >= TierNormal {
		parts = append(parts, channel)
	}
	parts = append(parts, body)
	if d.Tier >= TierWide {
		parts = append(parts, age)
	}
	if d.Tier >= TierUltraWide {
		parts = append(parts, issue)
	}

	row := lipgloss.JoinHorizontal(lipgloss.Left, parts...)
	fmt.Fprint(w, baseStyle.Render(row))
}
