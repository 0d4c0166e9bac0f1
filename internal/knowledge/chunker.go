package knowledge

import (
	"fmt"
	"strings"
)

// Chunking defaults matching the ingestion pipeline contract.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// chunkSeparators, tried in order: paragraph, line, word, then hard cut.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping chunks, preferring natural
// boundaries (paragraphs, then lines, then words) over hard cuts.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates and builds a Chunker. Sizes are in runes.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in order. Empty input yields nil.
func (c *Chunker) Split(text string) []string {
	var out []string
	for _, chunk := range c.split(text, chunkSeparators) {
		trimmed := strings.TrimSpace(chunk)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Chunker) split(text string, seps []string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	sep, rest := c.pickSeparator(text, seps)
	if sep == "" {
		return c.hardSplit(runes)
	}

	var chunks []string
	var current []rune
	seedLen := 0 // length of the overlap seed at the head of current

	flush := func() {
		if len(current) > seedLen {
			chunks = append(chunks, string(current))
			current = c.overlapTail(current)
			seedLen = len(current)
		}
	}

	for _, piece := range strings.SplitAfter(text, sep) {
		pieceRunes := []rune(piece)

		// A single piece larger than the budget splits at a finer boundary.
		if len(pieceRunes) > c.size {
			flush()
			sub := c.split(piece, rest)
			chunks = append(chunks, sub...)
			current = c.overlapTail([]rune(sub[len(sub)-1]))
			seedLen = len(current)
			continue
		}

		if len(current)+len(pieceRunes) > c.size {
			flush()
			if len(current)+len(pieceRunes) > c.size {
				// The overlap seed alone would overflow; drop it.
				current = nil
				seedLen = 0
			}
		}
		current = append(current, pieceRunes...)
	}
	if len(current) > seedLen {
		chunks = append(chunks, string(current))
	}
	return chunks
}

// pickSeparator returns the first separator present in text plus the
// finer separators after it.
func (c *Chunker) pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// hardSplit cuts runes into fixed windows with overlap stride.
func (c *Chunker) hardSplit(runes []rune) []string {
	var chunks []string
	stride := c.size - c.overlap
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// overlapTail returns the trailing overlap window of an emitted chunk,
// seeding continuity into the next one.
func (c *Chunker) overlapTail(runes []rune) []rune {
	if c.overlap == 0 || len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.overlap {
		return append([]rune(nil), runes...)
	}
	return append([]rune(nil), runes[len(runes)-c.overlap:]...)
}
