package loader

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ChunkParams configures Chunker. Sizes are measured in runes.
type ChunkParams struct {
	Size    int
	Overlap int
	MinSize int
}

// DefaultChunkParams returns the chunking used when none is configured.
func DefaultChunkParams() ChunkParams {
	return ChunkParams{Size: 1500, Overlap: 200, MinSize: 1}
}

// Chunker splits prose into bounded, overlapping chunks. Paragraphs are
// kept whole when they fit; longer paragraphs are split between words, and
// words longer than a chunk are split between runes.
type Chunker struct {
	params ChunkParams
}

// NewChunker validates params and returns a Chunker.
func NewChunker(params ChunkParams) (Chunker, error) {
	if params.Size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", params.Size)
	}
	if params.Overlap < 0 || params.Overlap >= params.Size {
		return Chunker{}, fmt.Errorf("overlap (%d) must be in [0, size %d)", params.Overlap, params.Size)
	}
	if params.MinSize < 1 {
		params.MinSize = 1
	}
	return Chunker{params: params}, nil
}

// Params returns the chunking parameters.
func (c Chunker) Params() ChunkParams { return c.params }

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// piece is a unit of text plus the separator that joins it to the previous
// piece.
type piece struct {
	text string
	sep  string
}

// Split returns the chunks of text in order. Consecutive chunks share up
// to Overlap runes of whole trailing pieces.
func (c Chunker) Split(text string) []string {
	var chunks []string
	var buf []piece
	fresh := 0

	flush := func() {
		s := join(buf)
		if runeLen(s) >= c.params.MinSize {
			chunks = append(chunks, s)
		}
		buf = c.carry(buf)
		fresh = 0
	}

	for _, p := range c.pieces(text) {
		if len(buf) > 0 && measure(buf)+runeLen(p.sep)+runeLen(p.text) > c.params.Size {
			if fresh > 0 {
				flush()
			}
			for len(buf) > 0 && measure(buf)+runeLen(p.sep)+runeLen(p.text) > c.params.Size {
				buf = buf[1:]
			}
		}
		buf = append(buf, p)
		fresh++
	}
	if fresh > 0 {
		s := join(buf)
		if runeLen(s) >= c.params.MinSize {
			chunks = append(chunks, s)
		}
	}
	return chunks
}

// carry returns the trailing pieces of buf that fit in the overlap.
func (c Chunker) carry(buf []piece) []piece {
	start := len(buf)
	for start > 0 && measure(buf[start-1:]) <= c.params.Overlap {
		start--
	}
	carried := make([]piece, len(buf)-start)
	copy(carried, buf[start:])
	return carried
}

func measure(buf []piece) int {
	n := 0
	for i, p := range buf {
		if i > 0 {
			n += runeLen(p.sep)
		}
		n += runeLen(p.text)
	}
	return n
}

func join(buf []piece) string {
	var b strings.Builder
	for i, p := range buf {
		if i > 0 {
			b.WriteString(p.sep)
		}
		b.WriteString(p.text)
	}
	return b.String()
}

// pieces breaks text into units no longer than the chunk size.
func (c Chunker) pieces(text string) []piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var result []piece
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runeLen(para) <= c.params.Size {
			result = append(result, piece{text: para, sep: "\n\n"})
			continue
		}
		sep := "\n\n"
		for _, word := range strings.FieldsFunc(para, unicode.IsSpace) {
			if runeLen(word) <= c.params.Size {
				result = append(result, piece{text: word, sep: sep})
				sep = " "
				continue
			}
			for _, part := range splitRunes(word, c.params.Size) {
				result = append(result, piece{text: part, sep: sep})
				sep = ""
			}
			sep = " "
		}
	}
	return result
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var parts []string
	for i := 0; i < len(runes); i += size {
		parts = append(parts, string(runes[i:min(i+size, len(runes))]))
	}
	return parts
}

func runeLen(s string) int { return len([]rune(s)) }
