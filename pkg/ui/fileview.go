package ui

import (
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"threadlens/pkg/decor"
)

// FileView renders the watched file with its decoration layers: link
// underlines, age tints, channel-name substitution, and appended inline
// previews. Selection and scrolling follow the sidebar list.
type FileView struct {
	styles   *Styles
	lines    []string
	layers   map[decor.Layer][]decor.Annotation
	selected int
	top      int
}

// NewFileView creates an empty view.
func NewFileView(styles *Styles) *FileView {
	return &FileView{
		styles: styles,
		layers: make(map[decor.Layer][]decor.Annotation),
	}
}

// SetStyles swaps the style bundle, typically after a settings change.
func (v *FileView) SetStyles(styles *Styles) {
	v.styles = styles
}

// SetText replaces the document text.
func (v *FileView) SetText(text string) {
	v.lines = strings.Split(text, "\n")
	if v.selected >= len(v.lines) {
		v.selected = len(v.lines) - 1
	}
	if v.selected < 0 {
		v.selected = 0
	}
}

// SetLayer replaces one decoration layer. Nil annotations clear it.
func (v *FileView) SetLayer(layer decor.Layer, anns []decor.Annotation) {
	if len(anns) == 0 {
		delete(v.layers, layer)
		return
	}
	v.layers[layer] = anns
}

// ClearLayers drops every decoration layer.
func (v *FileView) ClearLayers() {
	v.layers = make(map[decor.Layer][]decor.Annotation)
}

// Select moves the highlighted line.
func (v *FileView) Select(line int) {
	if line < 0 {
		line = 0
	}
	if n := len(v.lines); n > 0 && line >= n {
		line = n - 1
	}
	v.selected = line
}

// Selected returns the highlighted 0-based line.
func (v *FileView) Selected() int {
	return v.selected
}

// LineCount returns the number of lines in the current text.
func (v *FileView) LineCount() int {
	return len(v.lines)
}

// lineDecor groups one line's annotations by role.
type lineDecor struct {
	links    []decor.Annotation
	tints    []tintSpan
	repls    []decor.Annotation
	previews []string
}

type tintSpan struct {
	start, end int
	style      lipgloss.Style
}

// decorByLine projects the layer map onto lines. Matches never span
// lines, so every annotation lands on its StartPos line.
func (v *FileView) decorByLine() map[int]*lineDecor {
	out := make(map[int]*lineDecor)
	get := func(line int) *lineDecor {
		d := out[line]
		if d == nil {
			d = &lineDecor{}
			out[line] = d
		}
		return d
	}

	for _, ann := range v.layers[decor.LayerPreview] {
		d := get(ann.StartPos.Line)
		d.links = append(d.links, ann)
		if ann.Text != "" {
			d.previews = append(d.previews, ann.Text)
		}
	}
	for _, ann := range v.layers[decor.LayerAgeToday] {
		d := get(ann.StartPos.Line)
		d.tints = append(d.tints, tintSpan{ann.StartPos.Col, ann.EndPos.Col, v.styles.AgeToday})
	}
	for _, ann := range v.layers[decor.LayerAgeOld] {
		d := get(ann.StartPos.Line)
		d.tints = append(d.tints, tintSpan{ann.StartPos.Col, ann.EndPos.Col, v.styles.AgeOld})
	}
	for _, ann := range v.layers[decor.LayerChannel] {
		d := get(ann.StartPos.Line)
		d.repls = append(d.repls, ann)
	}
	return out
}

// View renders the visible window. Scrolling keeps the selected line on
// screen.
func (v *FileView) View(width, height int) string {
	if height < 1 {
		height = 1
	}
	total := len(v.lines)

	start := v.top
	if v.selected < start {
		start = v.selected
	}
	if v.selected >= start+height {
		start = v.selected - height + 1
	}
	if start < 0 {
		start = 0
	}
	if total > 0 && start >= total {
		start = total - 1
	}
	v.top = start

	end := start + height
	if end > total {
		end = total
	}

	byLine := v.decorByLine()
	clip := v.styles.Renderer.NewStyle().MaxWidth(width)

	var rows []string
	for idx := start; idx < end; idx++ {
		rows = append(rows, clip.Render(v.renderLine(idx, byLine[idx])))
	}
	return strings.Join(rows, "\n")
}

func (v *FileView) renderLine(idx int, d *lineDecor) string {
	s := v.styles

	marker := " "
	num := s.LineNumber.Render(strconv.Itoa(idx + 1))
	if idx == v.selected {
		marker = s.StatusKey.Render("▌")
		num = s.LineNumber.Foreground(ColorPrimary).Bold(true).Render(strconv.Itoa(idx + 1))
	}

	content := v.lines[idx]
	body := content
	if d != nil {
		body = renderSpans(s, content, d)
		for _, p := range d.previews {
			body += "  " + s.InlinePreview.Render(p)
		}
	}
	return marker + num + body
}

// renderSpans styles one line's content byte ranges. Channel replacements
// win over age tints, tints over link underlines. Annotation columns come
// from the same text the lines were split from, so they are clamped only
// to guard slicing.
func renderSpans(s *Styles, content string, d *lineDecor) string {
	n := len(content)
	clamp := func(x int) int {
		if x < 0 {
			return 0
		}
		if x > n {
			return n
		}
		return x
	}

	cutSet := map[int]struct{}{0: {}, n: {}}
	for _, a := range d.links {
		cutSet[clamp(a.StartPos.Col)] = struct{}{}
		cutSet[clamp(a.EndPos.Col)] = struct{}{}
	}
	for _, t := range d.tints {
		cutSet[clamp(t.start)] = struct{}{}
		cutSet[clamp(t.end)] = struct{}{}
	}
	for _, r := range d.repls {
		cutSet[clamp(r.StartPos.Col)] = struct{}{}
		cutSet[clamp(r.EndPos.Col)] = struct{}{}
	}

	cuts := make([]int, 0, len(cutSet))
	for c := range cutSet {
		cuts = append(cuts, c)
	}
	sort.Ints(cuts)

	var sb strings.Builder
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a >= b {
			continue
		}
		seg := content[a:b]

		if r, isStart := replAt(d.repls, a, clamp); r != nil {
			if isStart {
				sb.WriteString(s.ChannelToken.Render(r.Text))
			}
			continue
		}
		if t := tintAt(d.tints, a, clamp); t != nil {
			sb.WriteString(t.style.Render(seg))
			continue
		}
		if linkAt(d.links, a, clamp) {
			sb.WriteString(s.LinkText.Render(seg))
			continue
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

func replAt(repls []decor.Annotation, col int, clamp func(int) int) (*decor.Annotation, bool) {
	for i := range repls {
		start, end := clamp(repls[i].StartPos.Col), clamp(repls[i].EndPos.Col)
		if col >= start && col < end {
			return &repls[i], col == start
		}
	}
	return nil, false
}

func tintAt(tints []tintSpan, col int, clamp func(int) int) *tintSpan {
	for i := range tints {
		if col >= clamp(tints[i].start) && col < clamp(tints[i].end) {
			return &tints[i]
		}
	}
	return nil
}

func linkAt(links []decor.Annotation, col int, clamp func(int) int) bool {
	for i := range links {
		if col >= clamp(links[i].StartPos.Col) && col < clamp(links[i].EndPos.Col) {
			return true
		}
	}
	return false
}
