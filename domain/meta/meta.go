// Package meta is a small key/value store for pipeline bookkeeping.
package meta

import "context"

// Well-known keys.
const (
	KeySchemaVersion       = "schema_version"
	KeyLegacyLedgerVersion = "legacy_ledger_migration"
	KeyLastIndexedRevision = "last_indexed_revision"
	KeyTaxonomyBuiltAt     = "taxonomy_built_at"
	KeyNextClusterID       = "next_cluster_id"
)

// Store reads and writes string values by key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
