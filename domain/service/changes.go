package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/query"
)

// ChangeSet lists the candidates that need processing.
type ChangeSet struct {
	files           []string
	hashes          map[string]string
	revisionChanged int
	upToDate        int
	missing         []string
	vcsAvailable    bool
}

// Files returns the files to process: those whose recorded revision is
// stale first, then the rest, each group sorted.
func (c ChangeSet) Files() []string {
	f := make([]string, len(c.files))
	copy(f, c.files)
	return f
}

// Hash returns the content hash computed for file during the check.
func (c ChangeSet) Hash(file string) string { return c.hashes[file] }

// RevisionChanged returns how many files had a stale recorded revision.
func (c ChangeSet) RevisionChanged() int { return c.revisionChanged }

// UpToDate returns how many candidates were skipped as unchanged.
func (c ChangeSet) UpToDate() int { return c.upToDate }

// Missing returns candidates that could not be read.
func (c ChangeSet) Missing() []string {
	m := make([]string, len(c.missing))
	copy(m, c.missing)
	return m
}

// VCSAvailable reports whether revision data was used.
func (c ChangeSet) VCSAvailable() bool { return c.vcsAvailable }

// ChangeTracker decides which files need reprocessing. The content hash is
// authoritative; revisions only order the work.
type ChangeTracker struct {
	ledger ledger.Store
	vcs    VCS
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewChangeTracker creates a ChangeTracker. vcs may be nil.
func NewChangeTracker(store ledger.Store, vcs VCS, root string, logger *slog.Logger) *ChangeTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeTracker{
		ledger: store,
		vcs:    vcs,
		root:   root,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Root returns the documents root paths are relative to.
func (t *ChangeTracker) Root() string { return t.root }

// ContentHash hashes the current bytes of path.
func (t *ChangeTracker) ContentHash(path string) (string, error) {
	data, err := os.ReadFile(t.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return ledger.HashBytes(data), nil
}

// IsUpToDate reports whether path's current content matches the ledger.
// The hash is recomputed on every call.
func (t *ChangeTracker) IsUpToDate(ctx context.Context, path string) (bool, error) {
	hash, err := t.ContentHash(path)
	if err != nil {
		return false, err
	}
	records, err := t.ledger.Find(ctx, query.WithPath(path))
	if err != nil {
		return false, fmt.Errorf("find ledger record: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}
	return records[0].Matches(hash), nil
}

// MarkProcessed records path's current hash and revision.
func (t *ChangeTracker) MarkProcessed(ctx context.Context, path string) error {
	hash, err := t.ContentHash(path)
	if err != nil {
		return err
	}
	return t.MarkProcessedHash(ctx, path, hash)
}

// MarkProcessedHash records hash for path, the hash that was indexed.
func (t *ChangeTracker) MarkProcessedHash(ctx context.Context, path, hash string) error {
	revision := ""
	if t.vcsReady(ctx) {
		rev, err := t.vcs.LastRevisionTouching(ctx, path)
		if err != nil {
			t.logger.Warn("revision lookup failed, recording empty revision",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			revision = rev
		}
	}
	if err := t.ledger.Save(ctx, ledger.NewRecord(path, hash, revision, t.now())); err != nil {
		return fmt.Errorf("save ledger record: %w", err)
	}
	return nil
}

// UnprocessedFiles hash-checks every candidate against the ledger.
// When version control is unavailable every candidate is still checked and
// nothing is prioritised.
func (t *ChangeTracker) UnprocessedFiles(ctx context.Context, candidates []string) (ChangeSet, error) {
	set := ChangeSet{hashes: map[string]string{}}
	if len(candidates) == 0 {
		return set, nil
	}

	records, err := t.ledger.Find(ctx, query.WithPathIn(candidates))
	if err != nil {
		return set, fmt.Errorf("find ledger records: %w", err)
	}
	byPath := make(map[string]ledger.Record, len(records))
	for _, r := range records {
		byPath[r.Path()] = r
	}

	set.vcsAvailable = t.vcsReady(ctx)
	if !set.vcsAvailable && t.vcs != nil {
		t.logger.Warn("version control unavailable, checking every candidate")
	}

	var stale, rest []string
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return set, err
		}

		hash, err := t.ContentHash(path)
		if err != nil {
			set.missing = append(set.missing, path)
			continue
		}
		set.hashes[path] = hash

		record, known := byPath[path]
		revisionStale := false
		if set.vcsAvailable && known {
			rev, err := t.vcs.LastRevisionTouching(ctx, path)
			if err != nil {
				t.logger.Warn("revision lookup failed, checking every candidate",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				set.vcsAvailable = false
			} else if rev != "" && rev != record.RevisionID() {
				revisionStale = true
				set.revisionChanged++
			}
		}

		switch {
		case known && record.Matches(hash):
			set.upToDate++
		case revisionStale:
			stale = append(stale, path)
		default:
			rest = append(rest, path)
		}
	}

	sort.Strings(stale)
	sort.Strings(rest)
	sort.Strings(set.missing)
	set.files = append(stale, rest...)
	return set, nil
}

func (t *ChangeTracker) vcsReady(ctx context.Context) bool {
	return t.vcs != nil && t.vcs.IsRepository(ctx)
}

func (t *ChangeTracker) resolve(path string) string {
	if filepath.IsAbs(path) || t.root == "" {
		return path
	}
	return filepath.Join(t.root, path)
}
