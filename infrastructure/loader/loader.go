// Package loader discovers plain-text documents and splits them into chunks.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/helixml/taxon/domain/document"
)

// ErrNotText indicates a file that is not valid UTF-8 text.
var ErrNotText = errors.New("not a text document")

// TextLoader reads UTF-8 documents below a root directory. Document IDs are
// the paths passed to LoadAndChunk; relative paths resolve against the root.
type TextLoader struct {
	root    string
	chunker Chunker
	logger  *slog.Logger
}

// NewTextLoader creates a TextLoader.
func NewTextLoader(root string, chunker Chunker, logger *slog.Logger) *TextLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextLoader{root: root, chunker: chunker, logger: logger}
}

// Root returns the documents root.
func (l *TextLoader) Root() string { return l.root }

// Resolve returns the filesystem path of a document ID.
func (l *TextLoader) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// LoadAndChunk reads path and returns its chunks without vectors. An empty
// document yields no chunks and no error.
func (l *TextLoader) LoadAndChunk(ctx context.Context, path string) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.Resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrNotText, path)
	}

	fm, body, err := splitFrontMatter(string(data))
	if err != nil {
		l.logger.Warn("ignoring front matter", slog.String("path", path), slog.String("error", err.Error()))
	}
	tags := fm.tags()

	texts := l.chunker.Split(body)
	chunks := make([]document.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = document.NewChunk(path, i, len(texts), text, tags)
	}
	return chunks, nil
}

var _ document.Loader = (*TextLoader)(nil)
