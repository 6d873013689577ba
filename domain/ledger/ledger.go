// Package ledger holds the processed-file ledger owned by the change tracker.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/helixml/taxon/domain/query"
)

// Record is one processed file: the hash and revision seen when it was
// last indexed successfully.
type Record struct {
	path        string
	contentHash string
	revisionID  string
	processedAt time.Time
}

// NewRecord creates a Record.
func NewRecord(path, contentHash, revisionID string, processedAt time.Time) Record {
	return Record{
		path:        path,
		contentHash: contentHash,
		revisionID:  revisionID,
		processedAt: processedAt,
	}
}

// Path returns the file path, relative to the documents root.
func (r Record) Path() string { return r.path }

// ContentHash returns the hex sha256 of the file bytes.
func (r Record) ContentHash() string { return r.contentHash }

// RevisionID returns the revision that last touched the file, or "".
func (r Record) RevisionID() string { return r.revisionID }

// ProcessedAt returns when the file was last processed.
func (r Record) ProcessedAt() time.Time { return r.processedAt }

// Matches reports whether hash equals the recorded content hash.
func (r Record) Matches(hash string) bool {
	return r.contentHash != "" && r.contentHash == hash
}

// HashBytes returns the hex sha256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store persists ledger records keyed by path. Save is last-write-wins.
type Store interface {
	Find(ctx context.Context, options ...query.Option) ([]Record, error)
	Save(ctx context.Context, record Record) error
	SaveAll(ctx context.Context, records []Record) error
	Count(ctx context.Context, options ...query.Option) (int64, error)
	DeleteBy(ctx context.Context, options ...query.Option) error
}
