// Package chunker splits normalized document text into overlapping windows
// sized for embedding. Breaks prefer sentence boundaries so retrieval snippets
// read as coherent prose.
package chunker

import "fmt"

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

type Chunk struct {
	Index int
	Text  string
}

type Chunker struct {
	size    int
	overlap int
}

// New returns a chunker with the given window size and overlap, both in
// characters. Overlap must leave room for forward progress on every step.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size/2 {
		return nil, fmt.Errorf("overlap must be in [0, size/2), got %d for size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func Default() *Chunker {
	c, _ := New(DefaultChunkSize, DefaultOverlap)
	return c
}

// Split cuts text into overlapping chunks. Each boundary is pulled back to the
// nearest sentence delimiter, then to the nearest word boundary, but never
// further than halfway into the window, so pathological delimiter-free text
// still chunks. Sizes are measured in runes so multi-byte text is never cut
// mid-character. Identical input always yields identical output.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []Chunk{{Index: 0, Text: text}}
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:])})
			break
		}

		cut := c.findCut(runes, start, end)
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:cut])})
		start = cut - c.overlap
	}
	return chunks
}

// findCut searches back from end for a sentence delimiter, then for a space,
// never crossing the halfway point of the window. With neither in range the
// window is cut hard at end.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	half := start + c.size/2
	for i := end; i > half; i-- {
		if isSentenceDelimiter(runes[i-1]) {
			return i
		}
	}
	for i := end; i > half; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return end
}

func isSentenceDelimiter(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
