package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/pipeline"
)

func TestClusterBuilder_Build_FiftyDocumentsFiveClusters(t *testing.T) {
	f := newFixture(t)
	paths := f.seed(50)
	f.write("empty.md", "")
	requireOK(t, f.indexer.Reprocess(f.ctx, nil))

	s := requireOK(t, f.builder.Build(f.ctx, BuildParams{Algorithm: "kmeans", K: 5}))
	assert.Equal(t, 5, s.Count(pipeline.CountClusters))
	assert.Equal(t, 50, s.Count(pipeline.CountDocuments))
	assert.Equal(t, 50, s.Processed())
	assert.Equal(t, 1, s.Skipped(), "the empty document has no representative vector")

	clusters, err := f.clusters.FindAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 5)

	owner := map[string]int{}
	total := 0
	for i, c := range clusters {
		assert.Equal(t, i, c.ID())
		total += c.Size()
		for _, m := range c.Members() {
			_, dup := owner[m.DocumentID()]
			require.False(t, dup, "%s is in more than one cluster", m.DocumentID())
			owner[m.DocumentID()] = c.ID()
		}
	}
	assert.Equal(t, 50, total)
	assert.NotContains(t, owner, "empty.md")

	// Documents on the same topic land together.
	for i, p := range paths {
		assert.Equal(t, owner[paths[i%len(topics)]], owner[p], p)
	}
}

func TestClusterBuilder_Build_ReplacesPreviousClusters(t *testing.T) {
	f := newFixture(t)
	f.seed(10)
	requireOK(t, f.indexer.Reprocess(f.ctx, nil))

	requireOK(t, f.builder.Build(f.ctx, BuildParams{K: 5}))
	requireOK(t, f.builder.Build(f.ctx, BuildParams{K: 2}))

	n, err := f.clusters.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clusters, err := f.clusters.FindAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, 5, clusters[0].ID(), "IDs of the first build are not reused")
	assert.Equal(t, 6, clusters[1].ID())
}

func TestClusterBuilder_Build_DBSCANNoiseIsUnclustered(t *testing.T) {
	f := newFixture(t)
	for i := range 6 {
		f.write(fmt.Sprintf("sky-%d.md", i), "astronomy "+strings.Repeat("astronomy ", i+2))
	}
	f.write("kitchen.md", "cooking cooking cooking")
	requireOK(t, f.indexer.Reprocess(f.ctx, nil))

	s := requireOK(t, f.builder.Build(f.ctx, BuildParams{Algorithm: "dbscan", Epsilon: 0.1, MinPoints: 3}))
	assert.Equal(t, 1, s.Count(pipeline.CountClusters))
	assert.Equal(t, 1, s.Count(pipeline.CountUnclustered))
	assert.Equal(t, 6, s.Processed())

	clusters, err := f.clusters.FindAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.False(t, clusters[0].Contains("kitchen.md"))
}

func TestClusterBuilder_Build_MaxDocumentsCapsInPathOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(10)
	requireOK(t, f.indexer.Reprocess(f.ctx, nil))

	s := requireOK(t, f.builder.Build(f.ctx, BuildParams{K: 2, MaxDocuments: 4}))
	assert.Equal(t, 4, s.Count(pipeline.CountDocuments))

	clusters, err := f.clusters.FindAll(f.ctx)
	require.NoError(t, err)
	for _, c := range clusters {
		for _, m := range c.Members() {
			assert.Contains(t, []string{"doc-00.md", "doc-01.md", "doc-02.md", "doc-03.md"}, m.DocumentID())
		}
	}
}

func TestClusterBuilder_Build_NoDocumentsWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(5)
	requireOK(t, f.indexer.Reprocess(f.ctx, nil))
	requireOK(t, f.builder.Build(f.ctx, BuildParams{K: 2}))

	// Every ledger entry now lacks chunks.
	require.NoError(t, f.index.Clear(f.ctx))
	r := f.builder.Build(f.ctx, BuildParams{K: 2})
	require.False(t, r.OK())
	assert.ErrorIs(t, pipeline.Err(r), ErrNoDocuments)
	assert.Equal(t, pipeline.KindIntegrity, pipeline.KindOf(pipeline.Err(r)))
	assert.Equal(t, 5, r.Summary().Skipped())

	n, err := f.clusters.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClusterBuilder_Build_RejectsBadParams(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		params BuildParams
	}{
		{"unknown algorithm", BuildParams{Algorithm: "spectral"}},
		{"negative k", BuildParams{K: -1}},
		{"dbscan without epsilon", BuildParams{Algorithm: "dbscan", MinPoints: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.builder.Build(f.ctx, tt.params)
			require.False(t, r.OK())
			assert.ErrorIs(t, pipeline.Err(r), pipeline.ErrConfiguration)
		})
	}
}
