package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := Default()
	chunks := c.Split("A short document.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Text != "A short document." {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := Default().Split(""); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
}

func TestSplitChunkCountAndIndices(t *testing.T) {
	// 156 sentences of 16 chars each: 2496 chars at size 1000 / overlap 200
	// breaks into exactly 3 chunks.
	text := strings.Repeat("word word word. ", 156)
	c, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunks := c.Split(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if len(ch.Text) > 1000 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch.Text))
		}
	}
}

func TestSplitPrefersSentenceBoundaries(t *testing.T) {
	text := strings.Repeat("One sentence here. ", 200)
	chunks := Default().Split(text)

	for i, ch := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimRight(ch.Text, " ")
		if !strings.HasSuffix(trimmed, ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, ch.Text[len(ch.Text)-20:])
		}
	}
}

func TestSplitCoversWholeText(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 120)
	c, _ := New(500, 100)
	chunks := c.Split(text)

	// Every chunk must appear in order and start no later than the end of
	// the previous chunk, so the union covers the whole input.
	covered := 0
	searchFrom := 0
	for i, ch := range chunks {
		idx := strings.Index(text[searchFrom:], ch.Text)
		if idx < 0 {
			t.Fatalf("chunk %d not found in source text", i)
		}
		start := searchFrom + idx
		if start > covered {
			t.Errorf("gap before chunk %d: starts at %d, coverage ended at %d", i, start, covered)
		}
		if end := start + len(ch.Text); end > covered {
			covered = end
		}
		searchFrom = start + 1
	}
	if covered != len(text) {
		t.Errorf("coverage ends at %d, want %d", covered, len(text))
	}
}

func TestSplitFallsBackToWordBoundaries(t *testing.T) {
	// No sentence delimiters anywhere, only spaces.
	text := strings.TrimRight(strings.Repeat("echo alpha bravo charlie delta ", 100), " ")
	c, _ := New(1000, 200)
	chunks := c.Split(text)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		words[w] = struct{}{}
	}
	for i, ch := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(ch.Text, " ") {
			t.Errorf("chunk %d did not cut at a word boundary: %q", i, ch.Text[len(ch.Text)-12:])
		}
		fields := strings.Fields(ch.Text)
		if len(fields) == 0 {
			t.Fatalf("chunk %d is blank", i)
		}
		if _, ok := words[fields[len(fields)-1]]; !ok {
			t.Errorf("chunk %d ends mid-word: %q", i, fields[len(fields)-1])
		}
	}
}

func TestSplitKeepsRuneBoundaries(t *testing.T) {
	// Multi-byte runes with no spaces or delimiters force hard cuts.
	text := strings.Repeat("ドキュメント取り込みパイプライン", 200)
	c, _ := New(1000, 200)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Errorf("chunk %d contains invalid UTF-8", i)
		}
		if n := utf8.RuneCountInString(ch.Text); n > 1000 {
			t.Errorf("chunk %d exceeds size: %d runes", i, n)
		}
	}
}

func TestSplitDelimiterFreeText(t *testing.T) {
	text := strings.Repeat("x", 2500)
	c, _ := New(1000, 200)
	chunks := c.Split(text)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) > 1000 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch.Text))
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Deterministic chunking matters for idempotent sync. ", 80)
	c, _ := New(800, 150)

	first := c.Split(text)
	second := c.Split(text)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different chunk sets")
	}
}

func TestNewRejectsBadOverlap(t *testing.T) {
	if _, err := New(1000, 500); err == nil {
		t.Error("expected error for overlap >= size/2")
	}
	if _, err := New(0, 0); err == nil {
		t.Error("expected error for zero size")
	}
}
