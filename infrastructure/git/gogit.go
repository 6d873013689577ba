package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/helixml/taxon/domain/service"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// GoGit implements service.VCS with the go-git library.
type GoGit struct {
	root     string
	repoRoot string
	repo     *gogit.Repository
	logger   *slog.Logger
}

// NewGoGit opens the repository containing root.
func NewGoGit(root string, logger *slog.Logger) (*GoGit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open repository: %w", service.ErrVCSUnavailable, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: get worktree: %w", service.ErrVCSUnavailable, err)
	}

	repoRoot := worktree.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(repoRoot); err == nil {
		repoRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return &GoGit{root: abs, repoRoot: repoRoot, repo: repo, logger: logger}, nil
}

// IsRepository returns true once the repository has been opened.
func (g *GoGit) IsRepository(context.Context) bool { return g.repo != nil }

// CurrentRevision returns the HEAD commit hash.
func (g *GoGit) CurrentRevision(context.Context) (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("%w: get HEAD: %w", service.ErrVCSUnavailable, err)
	}
	return head.Hash().String(), nil
}

// LastRevisionTouching walks history from HEAD and returns the newest commit
// that changed path, or "" when none did.
func (g *GoGit) LastRevisionTouching(ctx context.Context, path string) (string, error) {
	rel, err := relativeTo(g.root, g.repoRoot, path)
	if err != nil {
		return "", err
	}

	head, err := g.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: get HEAD: %w", service.ErrVCSUnavailable, err)
	}

	iter, err := g.repo.Log(&gogit.LogOptions{From: head.Hash(), FileName: &rel})
	if err != nil {
		return "", fmt.Errorf("log %s: %w", rel, err)
	}
	defer iter.Close()

	var revision string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		revision = c.Hash.String()
		return storer.ErrStop
	})
	if err != nil {
		return "", fmt.Errorf("log %s: %w", rel, err)
	}
	return revision, nil
}

var _ service.VCS = (*GoGit)(nil)
