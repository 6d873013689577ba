package git

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// NoIndexFile lists extra glob patterns, one per line, that discovery skips.
const NoIndexFile = ".noindex"

// Ignore matches paths against the root's .gitignore files and .noindex
// patterns.
type Ignore struct {
	matcher gitignore.Matcher
	noIndex []string
}

// NewIgnore loads ignore rules below root. A root without .gitignore or
// .noindex files ignores only the .git directory.
func NewIgnore(root string) (Ignore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Ignore{}, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return Ignore{}, fmt.Errorf("%s is not a directory", root)
	}

	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return Ignore{}, fmt.Errorf("read gitignore patterns: %w", err)
	}

	noIndex, err := loadNoIndex(filepath.Join(root, NoIndexFile))
	if err != nil {
		return Ignore{}, err
	}
	return Ignore{matcher: gitignore.NewMatcher(patterns), noIndex: noIndex}, nil
}

// ShouldIgnore reports whether rel, a slash-separated path relative to the
// root, is excluded.
func (i Ignore) ShouldIgnore(rel string, isDir bool) bool {
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if i.matcher != nil && i.matcher.Match(strings.Split(rel, "/"), isDir) {
		return true
	}
	for _, pattern := range i.noIndex {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func loadNoIndex(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", NoIndexFile, err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", NoIndexFile, err)
	}
	return patterns, nil
}
