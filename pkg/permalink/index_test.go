package permalink

import "testing"

func TestIndex_Position(t *testing.T) {
	text := "ab\ncd\n\nxyz"
	ix := NewIndex(text)

	if ix.LineCount() != 4 {
		t.Fatalf("LineCount = %d, want 4", ix.LineCount())
	}

	tests := []struct {
		offset int
		line   int
		col    int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 0, 2},
		{3, 1, 0},
		{5, 1, 2},
		{6, 2, 0},
		{7, 3, 0},
		{9, 3, 2},
		{10, 3, 3},
		{-1, 0, 0},
		{100, 3, 3},
	}

	for _, tt := range tests {
		got := ix.Position(tt.offset)
		if got.Line != tt.line || got.Col != tt.col {
			t.Errorf("Position(%d) = (%d,%d), want (%d,%d)", tt.offset, got.Line, got.Col, tt.line, tt.col)
		}
	}
}

func TestIndex_Empty(t *testing.T) {
	ix := NewIndex("")
	if ix.LineCount() != 1 {
		t.Errorf("empty text LineCount = %d, want 1", ix.LineCount())
	}
	if got := ix.Position(0); got.Line != 0 || got.Col != 0 {
		t.Errorf("Position(0) = %+v, want (0,0)", got)
	}
}

func TestIndex_TrailingNewline(t *testing.T) {
	ix := NewIndex("a\n")
	if ix.LineCount() != 2 {
		t.Errorf("LineCount = %d, want 2", ix.LineCount())
	}
	if got := ix.Position(2); got.Line != 1 || got.Col != 0 {
		t.Errorf("Position(2) = %+v, want (1,0)", got)
	}
}

func TestIndex_LineStart(t *testing.T) {
	ix := NewIndex("ab\ncd\nef")
	tests := []struct {
		line int
		want int
	}{
		{0, 0},
		{1, 3},
		{2, 6},
		{-1, 0},
		{9, 6},
	}
	for _, tt := range tests {
		if got := ix.LineStart(tt.line); got != tt.want {
			t.Errorf("LineStart(%d) = %d, want %d", tt.line, got, tt.want)
		}
	}
}
