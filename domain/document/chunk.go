// Package document defines chunks of source documents and the loader port
// that produces them.
package document

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned when validating chunks.
var (
	ErrInvalidChunkSet = errors.New("invalid chunk set")
	ErrNoChunks        = errors.New("document has no chunks")
)

// Chunk is a bounded slice of a document's text with its own vector.
type Chunk struct {
	sourceFile string
	index      int
	total      int
	text       string
	vector     []float64
	tags       []string
}

// NewChunk creates a Chunk without a vector.
func NewChunk(sourceFile string, index, total int, text string, tags []string) Chunk {
	t := make([]string, len(tags))
	copy(t, tags)
	return Chunk{
		sourceFile: sourceFile,
		index:      index,
		total:      total,
		text:       text,
		tags:       t,
	}
}

// SourceFile returns the path of the document the chunk came from.
func (c Chunk) SourceFile() string { return c.sourceFile }

// Index returns the chunk's position within its file.
func (c Chunk) Index() int { return c.index }

// Total returns the number of chunks in the file's chunk set.
func (c Chunk) Total() int { return c.total }

// Text returns the chunk text.
func (c Chunk) Text() string { return c.text }

// Vector returns a copy of the chunk vector.
func (c Chunk) Vector() []float64 {
	v := make([]float64, len(c.vector))
	copy(v, c.vector)
	return v
}

// HasVector reports whether the chunk has been embedded.
func (c Chunk) HasVector() bool { return len(c.vector) > 0 }

// Tags returns the free-form tags the loader attached.
func (c Chunk) Tags() []string {
	t := make([]string, len(c.tags))
	copy(t, c.tags)
	return t
}

// WithVector returns a copy of the chunk carrying vector.
func (c Chunk) WithVector(vector []float64) Chunk {
	v := make([]float64, len(vector))
	copy(v, vector)
	c.vector = v
	return c
}

// ID returns a stable identifier for the chunk within its file.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.sourceFile, c.index)
}

// ValidateSet checks that chunks form one complete set for file: every chunk
// belongs to file and shares total == len(chunks), and indexes cover
// [0,total) exactly once.
func ValidateSet(file string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", ErrNoChunks, file)
	}

	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if c.sourceFile != file {
			return fmt.Errorf("%w: chunk %d belongs to %q, not %q", ErrInvalidChunkSet, c.index, c.sourceFile, file)
		}
		if c.total != len(chunks) {
			return fmt.Errorf("%w: chunk %d has total %d, set has %d", ErrInvalidChunkSet, c.index, c.total, len(chunks))
		}
		if c.index < 0 || c.index >= c.total {
			return fmt.Errorf("%w: chunk index %d out of range [0,%d)", ErrInvalidChunkSet, c.index, c.total)
		}
		if _, dup := seen[c.index]; dup {
			return fmt.Errorf("%w: duplicate chunk index %d", ErrInvalidChunkSet, c.index)
		}
		if !c.HasVector() {
			return fmt.Errorf("%w: chunk %d has no vector", ErrInvalidChunkSet, c.index)
		}
		seen[c.index] = struct{}{}
	}
	return nil
}

// Loader reads a document and splits it into chunks without vectors.
type Loader interface {
	LoadAndChunk(ctx context.Context, path string) ([]Chunk, error)
}
