package permalink

import (
	"sort"
	"strings"
)

// Position is a 0-based line and byte column inside a text snapshot.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Index maps byte offsets to positions for one immutable text snapshot.
// Build it once per scan; lookups are binary searches over line starts.
type Index struct {
	lineStarts []int
	length     int
}

// NewIndex builds a line index over text.
func NewIndex(text string) *Index {
	starts := []int{0}
	for i := 0; ; {
		j := strings.IndexByte(text[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
		starts = append(starts, i)
	}
	return &Index{lineStarts: starts, length: len(text)}
}

// LineCount returns the number of lines in the indexed text. Text without a
// trailing newline still counts its final line.
func (ix *Index) LineCount() int {
	return len(ix.lineStarts)
}

// Position converts a byte offset to a Position. Offsets are clamped to the
// indexed range.
func (ix *Index) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > ix.length {
		offset = ix.length
	}
	// First line start strictly greater than offset, then step back one.
	line := sort.Search(len(ix.lineStarts), func(i int) bool {
		return ix.lineStarts[i] > offset
	}) - 1
	return Position{Line: line, Col: offset - ix.lineStarts[line]}
}

// LineStart returns the byte offset where the given 0-based line begins.
// Out-of-range lines clamp to the nearest valid line.
func (ix *Index) LineStart(line int) int {
	if line < 0 {
		line = 0
	}
	if line >= len(ix.lineStarts) {
		line = len(ix.lineStarts) - 1
	}
	return ix.lineStarts[line]
}
