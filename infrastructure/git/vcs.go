// Package git answers revision questions about the documents root through
// go-git, falling back to the git binary.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/helixml/taxon/domain/service"
)

// Open returns the best available VCS for root: go-git backed by the git
// binary, the binary alone, or Unavailable when root is not a repository.
func Open(ctx context.Context, root string, logger *slog.Logger) service.VCS {
	if logger == nil {
		logger = slog.Default()
	}
	cli := NewCLI(root, logger)

	native, err := NewGoGit(root, logger)
	if err == nil {
		return NewFallback(native, cli, logger)
	}
	logger.Debug("go-git cannot open documents root", slog.String("root", root), slog.String("error", err.Error()))

	if cli.IsRepository(ctx) {
		return cli
	}
	return Unavailable{}
}

// Fallback asks primary first and secondary when primary fails.
type Fallback struct {
	primary   service.VCS
	secondary service.VCS
	logger    *slog.Logger
}

// NewFallback creates a Fallback.
func NewFallback(primary, secondary service.VCS, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// IsRepository reports whether either backend sees a repository.
func (f *Fallback) IsRepository(ctx context.Context) bool {
	return f.primary.IsRepository(ctx) || f.secondary.IsRepository(ctx)
}

// CurrentRevision returns the head revision.
func (f *Fallback) CurrentRevision(ctx context.Context) (string, error) {
	rev, err := f.primary.CurrentRevision(ctx)
	if err == nil {
		return rev, nil
	}
	f.logger.Debug("falling back to git binary", slog.String("op", "current_revision"), slog.String("error", err.Error()))
	return f.secondary.CurrentRevision(ctx)
}

// LastRevisionTouching returns the last revision that changed path.
func (f *Fallback) LastRevisionTouching(ctx context.Context, path string) (string, error) {
	rev, err := f.primary.LastRevisionTouching(ctx, path)
	if err == nil {
		return rev, nil
	}
	f.logger.Debug("falling back to git binary", slog.String("op", "last_revision"), slog.String("path", path), slog.String("error", err.Error()))
	return f.secondary.LastRevisionTouching(ctx, path)
}

// Unavailable is the VCS used when the documents root is not a repository.
type Unavailable struct{}

// IsRepository returns false.
func (Unavailable) IsRepository(context.Context) bool { return false }

// CurrentRevision returns service.ErrVCSUnavailable.
func (Unavailable) CurrentRevision(context.Context) (string, error) {
	return "", service.ErrVCSUnavailable
}

// LastRevisionTouching returns service.ErrVCSUnavailable.
func (Unavailable) LastRevisionTouching(context.Context, string) (string, error) {
	return "", service.ErrVCSUnavailable
}

// relativeTo resolves path against root and returns it relative to repoRoot
// with forward slashes.
func relativeTo(root, repoRoot, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(repoRoot, abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

var (
	_ service.VCS = (*Fallback)(nil)
	_ service.VCS = Unavailable{}
)
