package service

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/pipeline"
)

// scriptedGenerator replies with its responses in order, then repeats the
// last one.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	i := min(len(g.prompts)-1, len(g.responses)-1)
	return g.responses[i], nil
}

func (f *fixture) clustered(n, k int) {
	f.t.Helper()
	f.seed(n)
	requireOK(f.t, f.indexer.Reprocess(f.ctx, nil))
	requireOK(f.t, f.builder.Build(f.ctx, BuildParams{K: k}))
}

func TestProposer_Propose_OneProposalPerCluster(t *testing.T) {
	f := newFixture(t)
	f.clustered(15, 5)

	s := requireOK(t, f.proposer.Propose(f.ctx, 2))
	assert.Equal(t, 5, s.Processed())
	assert.Equal(t, 5, s.Count(pipeline.CountProposals))
	assert.Equal(t, 5, f.generator.callCount())

	proposals, err := f.proposals.FindProposals(f.ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 5)
	var names []string
	for _, p := range proposals {
		assert.Equal(t, "Science", p.Category())
		require.Len(t, p.Tags(), 1)
		names = append(names, p.Tags()[0].Name())
	}
	sort.Strings(names)
	want := append([]string(nil), topics...)
	sort.Strings(want)
	assert.Equal(t, want, names)
}

func TestProposer_Propose_FailedClustersAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.clustered(50, 5)
	f.generator.failTopics = map[string]bool{"geology": true, "finance": true}

	s := requireOK(t, f.proposer.Propose(f.ctx, 3))
	assert.Equal(t, 3, s.Count(pipeline.CountProposals))
	assert.Equal(t, 3, s.Processed())
	assert.Equal(t, 2, s.Failed())
	require.Len(t, s.Failures(), 2)
	for _, failure := range s.Failures() {
		assert.Contains(t, failure.Unit(), "cluster-")
		assert.Contains(t, failure.Message(), "generator refused")
	}

	ns := requireOK(t, f.normalizer.Normalize(f.ctx))
	assert.Equal(t, 3, ns.Count(pipeline.CountProposals))
	assert.Equal(t, 3, ns.Count(pipeline.CountTags))
	assert.Equal(t, 1, ns.Count(pipeline.CountCategories))

	tax, err := f.taxonomy.Load(f.ctx)
	require.NoError(t, err)
	_, hasGeology := tax.Tag("geology")
	assert.False(t, hasGeology)
	_, hasBotany := tax.Tag("botany")
	assert.True(t, hasBotany)
}

func TestProposer_Propose_EveryClusterFailingKeepsPreviousProposals(t *testing.T) {
	f := newFixture(t)
	f.clustered(10, 5)
	requireOK(t, f.proposer.Propose(f.ctx, 2))

	f.generator.failTopics = map[string]bool{}
	for _, topic := range topics {
		f.generator.failTopics[topic] = true
	}
	r := f.proposer.Propose(f.ctx, 2)
	require.False(t, r.OK())
	assert.Equal(t, 5, r.Summary().Failed())

	proposals, err := f.proposals.FindProposals(f.ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 5)
}

func TestProposer_Propose_RetriesMalformedResponses(t *testing.T) {
	f := newFixture(t)
	f.clustered(4, 1)
	gen := &scriptedGenerator{responses: []string{
		"I think these are about space.",
		`{"category": "Science", "subcategory": "Space", "tags": ["stars", {"name": "planets"}]}`,
	}}
	p := NewProposer(f.clusters, f.index, f.proposals, gen, nil, nil, WithProposerCallPolicy(testPolicy))

	s := requireOK(t, p.Propose(f.ctx, 10))
	assert.Equal(t, 1, s.Processed())
	assert.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "4 excerpts")

	proposals, err := f.proposals.FindProposals(f.ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.Len(t, proposals[0].Tags(), 2)
	assert.Equal(t, "stars", proposals[0].Tags()[0].Name())
	assert.Equal(t, "planets", proposals[0].Tags()[1].Name())
}

func TestProposer_Propose_ExhaustedRetriesFailTheCluster(t *testing.T) {
	f := newFixture(t)
	f.clustered(4, 1)
	gen := &scriptedGenerator{responses: []string{`{"category": "Science", "tags": []}`}}
	p := NewProposer(f.clusters, f.index, f.proposals, gen, nil, nil, WithProposerCallPolicy(testPolicy))

	r := p.Propose(f.ctx, 2)
	require.False(t, r.OK())
	assert.Equal(t, 1, r.Summary().Failed())
	assert.Len(t, gen.prompts, testPolicy.Retries+1)
}

func TestProposer_Propose_Preconditions(t *testing.T) {
	f := newFixture(t)

	r := NewProposer(f.clusters, f.index, f.proposals, nil, nil, nil).Propose(f.ctx, 2)
	assert.ErrorIs(t, pipeline.Err(r), ErrNoGenerator)

	r = f.proposer.Propose(f.ctx, 2)
	assert.ErrorIs(t, pipeline.Err(r), ErrNoClusters)

	r = f.proposer.Propose(f.ctx, 0)
	assert.ErrorIs(t, pipeline.Err(r), pipeline.ErrConfiguration)
}

func TestNormalizer_Normalize_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.clustered(15, 5)
	requireOK(t, f.proposer.Propose(f.ctx, 2))

	requireOK(t, f.normalizer.Normalize(f.ctx))
	first, err := f.taxonomy.Load(f.ctx)
	require.NoError(t, err)

	requireOK(t, f.normalizer.Normalize(f.ctx))
	second, err := f.taxonomy.Load(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Tags(), second.Tags())
	assert.Equal(t, first.Categories(), second.Categories())
	for _, id := range first.ClusterIDs() {
		assert.Equal(t, first.ClusterTags(id), second.ClusterTags(id))
	}
	assert.Len(t, first.Tags(), 5)
}

func TestNormalizer_Normalize_WithoutProposals(t *testing.T) {
	f := newFixture(t)
	r := f.normalizer.Normalize(f.ctx)
	require.False(t, r.OK())
	assert.ErrorIs(t, pipeline.Err(r), ErrNoProposals)
}
