package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/helixml/taxon/domain/service"
)

// CLI implements service.VCS by running the git binary.
type CLI struct {
	root   string
	binary string
	logger *slog.Logger
}

// NewCLI creates a CLI for root using the git binary on PATH.
func NewCLI(root string, logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &CLI{root: root, binary: "git", logger: logger}
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	if _, err := exec.LookPath(c.binary); err != nil {
		return "", fmt.Errorf("%w: %w", service.ErrVCSUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, c.binary, append([]string{"-C", c.root}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: git %s: %s", service.ErrVCSUnavailable, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepository reports whether root is inside a work tree.
func (c *CLI) IsRepository(ctx context.Context) bool {
	out, err := c.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentRevision returns the HEAD commit hash.
func (c *CLI) CurrentRevision(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// LastRevisionTouching returns the newest commit that changed path.
func (c *CLI) LastRevisionTouching(ctx context.Context, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.root, path)
	}
	return c.run(ctx, "log", "-1", "--format=%H", "--", abs)
}

var _ service.VCS = (*CLI)(nil)
