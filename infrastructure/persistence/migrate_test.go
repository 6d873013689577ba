package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/infrastructure/persistence"
	"github.com/helixml/taxon/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLegacy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processed_files.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLegacyLedgerMigration_NestedLayout(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	ledgerStore := persistence.NewLedgerStore(db)
	metaStore := persistence.NewMetaStore(db)

	path := writeLegacy(t, `{"files": {
		"b.md": {"hash": "hb", "commit": "c1", "processed_at": "2025-01-02T03:04:05Z"},
		"a.md": {"hash": "ha", "processed_at": 1700000000}
	}}`)
	migration := persistence.NewLegacyLedgerMigration(path, ledgerStore, metaStore, nil)

	ok, err := migration.Applicable(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := migration.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := ledgerStore.Find(ctx, query.WithOrderAsc("path"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ha", records[0].ContentHash())
	assert.True(t, records[0].ProcessedAt().Equal(time.Unix(1700000000, 0)))
	assert.Equal(t, "c1", records[1].RevisionID())
	assert.True(t, records[1].ProcessedAt().Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))

	version, _, err := metaStore.Get(ctx, meta.KeyLegacyLedgerVersion)
	require.NoError(t, err)
	assert.Equal(t, persistence.LegacyLedgerVersion, version)

	ok, err = migration.Applicable(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLegacyLedgerMigration_FlatLayoutKeepsNewerRecords(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	ledgerStore := persistence.NewLedgerStore(db)
	metaStore := persistence.NewMetaStore(db)

	require.NoError(t, ledgerStore.Save(ctx, ledger.NewRecord("a.md", "current", "r9", time.Now().UTC())))

	path := writeLegacy(t, `{"a.md": "old", "b.md": "hb"}`)
	n, err := persistence.NewLegacyLedgerMigration(path, ledgerStore, metaStore, nil).Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := ledgerStore.Find(ctx, query.WithPath("a.md"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "current", records[0].ContentHash())
}

func TestLegacyLedgerMigration_NotApplicable(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	missing := persistence.NewLegacyLedgerMigration(filepath.Join(t.TempDir(), "nope.json"),
		persistence.NewLedgerStore(db), persistence.NewMetaStore(db), nil)
	ok, err := missing.Applicable(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	unset := persistence.NewLegacyLedgerMigration("", persistence.NewLedgerStore(db), persistence.NewMetaStore(db), nil)
	ok, err = unset.Applicable(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLegacyLedgerMigration_Malformed(t *testing.T) {
	db := testdb.New(t)
	path := writeLegacy(t, `[1, 2, 3]`)
	_, err := persistence.NewLegacyLedgerMigration(path, persistence.NewLedgerStore(db), persistence.NewMetaStore(db), nil).
		Apply(context.Background())
	require.ErrorIs(t, err, persistence.ErrMalformedLegacyLedger)
}
