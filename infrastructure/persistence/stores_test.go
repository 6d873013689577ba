package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/taxonomy"
	"github.com/helixml/taxon/infrastructure/persistence"
	"github.com/helixml/taxon/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_RecordsSchemaVersion(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	require.NoError(t, persistence.ValidateSchema(db))

	value, ok, err := persistence.NewMetaStore(db).Get(ctx, meta.KeySchemaVersion)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)

	// A second run is a no-op.
	require.NoError(t, persistence.AutoMigrate(db))
}

func TestLedgerStore_SaveIsLastWriteWins(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewLedgerStore(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, ledger.NewRecord("a.md", "h1", "r1", at)))
	require.NoError(t, store.Save(ctx, ledger.NewRecord("a.md", "h2", "r2", at.Add(time.Hour))))

	records, err := store.Find(ctx, query.WithPath("a.md"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "h2", records[0].ContentHash())
	assert.Equal(t, "r2", records[0].RevisionID())
	assert.True(t, records[0].ProcessedAt().Equal(at.Add(time.Hour)))
}

func TestLedgerStore_SaveAllAndDelete(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewLedgerStore(db)
	at := time.Now().UTC()

	require.NoError(t, store.SaveAll(ctx, []ledger.Record{
		ledger.NewRecord("a.md", "h1", "", at),
		ledger.NewRecord("b.md", "h2", "", at),
		ledger.NewRecord("c.md", "h3", "", at),
	}))
	require.NoError(t, store.SaveAll(ctx, []ledger.Record{
		ledger.NewRecord("a.md", "h9", "", at),
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, store.DeleteBy(ctx, query.WithPathIn([]string{"b.md", "c.md"})))
	records, err := store.Find(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "h9", records[0].ContentHash())

	require.NoError(t, store.DeleteBy(ctx))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMetaStore_GetSet(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewMetaStore(db)

	_, ok, err := store.Get(ctx, meta.KeyLastIndexedRevision)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, meta.KeyLastIndexedRevision, "abc"))
	require.NoError(t, store.Set(ctx, meta.KeyLastIndexedRevision, "def"))

	value, ok, err := store.Get(ctx, meta.KeyLastIndexedRevision)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", value)
}

func TestClusterStore_ReplaceIsWholesale(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewClusterStore(db)

	first := []cluster.Cluster{
		cluster.NewCluster(0, []float64{1, 0}, []cluster.Member{cluster.NewMember("a.md", 0.1), cluster.NewMember("b.md", 0.2)}),
		cluster.NewCluster(1, []float64{0, 1}, []cluster.Member{cluster.NewMember("c.md", 0)}),
	}
	require.NoError(t, store.Replace(ctx, first))

	second := []cluster.Cluster{
		cluster.NewCluster(0, []float64{0.5, 0.5}, []cluster.Member{
			cluster.NewMember("c.md", 0.3), cluster.NewMember("a.md", 0.4),
		}),
	}
	require.NoError(t, store.Replace(ctx, second))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	clusters, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []float64{0.5, 0.5}, clusters[0].Centroid())
	assert.Equal(t, 2, clusters[0].Size())
	assert.True(t, clusters[0].Contains("a.md"))
	assert.False(t, clusters[0].Contains("b.md"))
}

func TestProposalStore_ReplaceProposals(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewProposalStore(db)

	require.NoError(t, store.ReplaceProposals(ctx, []taxonomy.Proposal{
		taxonomy.NewProposal(2, "Ops", "Deploy", []taxonomy.TagProposal{taxonomy.NewTagProposal("kubernetes", "k8s")}),
		taxonomy.NewProposal(0, "Food", "Baking", nil),
	}))
	require.NoError(t, store.ReplaceProposals(ctx, []taxonomy.Proposal{
		taxonomy.NewProposal(1, "Engineering", "Testing", []taxonomy.TagProposal{
			taxonomy.NewTagProposal("unit tests", "small tests"),
			taxonomy.NewTagProposal("ci", ""),
		}),
	}))

	proposals, err := store.FindProposals(ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, 1, proposals[0].ClusterID())
	assert.Equal(t, "Engineering", proposals[0].Category())
	require.Len(t, proposals[0].Tags(), 2)
	assert.Equal(t, "unit tests", proposals[0].Tags()[0].Name())
	assert.Equal(t, "small tests", proposals[0].Tags()[0].Description())
}

func TestTaxonomyStore_ReplaceAndLoad(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewTaxonomyStore(db)

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	tax := taxonomy.NewTaxonomy(
		[]taxonomy.Category{taxonomy.NewCategory("Engineering", []string{"Testing", "Deploy"})},
		[]taxonomy.Tag{taxonomy.NewTag("ci", "continuous integration"), taxonomy.NewTag("unit tests", "")},
		map[int][]string{0: {"unit tests", "ci"}, 3: {"ci"}},
	)
	require.NoError(t, store.Replace(ctx, tax))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, tax, loaded)

	replacement := taxonomy.NewTaxonomy(nil, []taxonomy.Tag{taxonomy.NewTag("baking", "")}, map[int][]string{0: {"baking"}})
	require.NoError(t, store.Replace(ctx, replacement))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Categories())
	assert.Equal(t, []int{0}, loaded.ClusterIDs())
	assert.Equal(t, []string{"baking"}, loaded.ClusterTags(0))
	_, ok := loaded.Tag("ci")
	assert.False(t, ok)
}

func TestAssignmentStore_ReplaceForDocument(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewAssignmentStore(db)

	require.NoError(t, store.ReplaceForDocument(ctx, "a.md", []assignment.Assignment{
		assignment.NewAssignment("a.md", "go", 0.4, assignment.SourceEmbedding),
		assignment.NewAssignment("a.md", "testing", 0.9, assignment.SourceCombined),
	}))
	require.NoError(t, store.ReplaceForDocument(ctx, "b.md", []assignment.Assignment{
		assignment.NewAssignment("b.md", "go", 0.7, assignment.SourceCluster),
	}))
	require.NoError(t, store.ReplaceForDocument(ctx, "a.md", []assignment.Assignment{
		assignment.NewAssignment("a.md", "baking", 0.5, assignment.SourceLLM),
	}))

	all, err := store.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.md", all[0].DocumentID())
	assert.Equal(t, "baking", all[0].Tag())
	assert.Equal(t, assignment.SourceLLM, all[0].Source())
	assert.Equal(t, "b.md", all[1].DocumentID())

	count, err := store.Count(ctx, assignment.WithTag("go"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAssignmentStore_FindOrdersByConfidence(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewAssignmentStore(db)

	require.NoError(t, store.ReplaceForDocument(ctx, "a.md", []assignment.Assignment{
		assignment.NewAssignment("a.md", "low", 0.2, assignment.SourceEmbedding),
		assignment.NewAssignment("a.md", "high", 0.8, assignment.SourceEmbedding),
		assignment.NewAssignment("a.md", "mid", 0.5, assignment.SourceEmbedding),
	}))

	found, err := store.Find(ctx, assignment.WithDocument("a.md"))
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{found[0].Tag(), found[1].Tag(), found[2].Tag()})
}

func TestAssignmentStore_RejectsForeignDocument(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewAssignmentStore(db)

	require.NoError(t, store.ReplaceForDocument(ctx, "a.md", []assignment.Assignment{
		assignment.NewAssignment("a.md", "go", 0.4, assignment.SourceEmbedding),
	}))
	err := store.ReplaceForDocument(ctx, "a.md", []assignment.Assignment{
		assignment.NewAssignment("b.md", "go", 0.4, assignment.SourceEmbedding),
	})
	require.Error(t, err)

	// The failed replacement rolled back.
	count, err := store.Count(ctx, assignment.WithDocument("a.md"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClusterStore_NextIDNeverGoesBack(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := persistence.NewClusterStore(db)

	next, err := store.NextID(ctx)
	require.NoError(t, err)
	assert.Zero(t, next)

	require.NoError(t, store.Replace(ctx, []cluster.Cluster{
		cluster.NewCluster(0, []float64{1, 0}, nil),
		cluster.NewCluster(1, []float64{0, 1}, nil),
	}))
	next, err = store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// Emptying the set does not free the IDs.
	require.NoError(t, store.Replace(ctx, nil))
	next, err = store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestAssignmentStore_DeleteUnindexed(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	ledgerStore := persistence.NewLedgerStore(db)
	store := persistence.NewAssignmentStore(db)

	require.NoError(t, ledgerStore.Save(ctx, ledger.NewRecord("kept.md", "h1", "", time.Now())))
	require.NoError(t, store.ReplaceForDocument(ctx, "kept.md", []assignment.Assignment{
		assignment.NewAssignment("kept.md", "baking", 0.9, assignment.SourceEmbedding),
	}))
	require.NoError(t, store.ReplaceForDocument(ctx, "gone.md", []assignment.Assignment{
		assignment.NewAssignment("gone.md", "baking", 0.8, assignment.SourceEmbedding),
	}))

	require.NoError(t, store.DeleteUnindexed(ctx))

	all, err := store.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "kept.md", all[0].DocumentID())
}
