package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/infrastructure/loader"
	"github.com/helixml/taxon/infrastructure/persistence"
	"github.com/helixml/taxon/internal/testdb"
)

var topics = []string{"astronomy", "botany", "cooking", "geology", "finance"}

// topicVector places text on one axis per topic word it mentions, plus a
// small constant axis so no vector is zero.
func topicVector(text string) []float64 {
	lower := strings.ToLower(text)
	v := make([]float64, len(topics)+1)
	for i, topic := range topics {
		v[i] = float64(strings.Count(lower, topic))
	}
	v[len(topics)] = 0.1 + float64(len(text)%5)/50
	return v
}

func dominantTopic(text string) string {
	v := topicVector(text)
	best := 0
	for i := range topics {
		if v[i] > v[best] {
			best = i
		}
	}
	return topics[best]
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.texts += len(texts)
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = topicVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) embedded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts
}

type fakeGenerator struct {
	mu         sync.Mutex
	calls      int
	failTopics map[string]bool
	refine     func(prompt string) (string, error)
}

func (g *fakeGenerator) Generate(_ context.Context, prompt, system string) (string, error) {
	g.mu.Lock()
	g.calls++
	refine := g.refine
	g.mu.Unlock()

	if system == refineSystemPrompt {
		if refine == nil {
			return "", errors.New("refinement not scripted")
		}
		return refine(prompt)
	}

	topic := dominantTopic(prompt)
	if g.failTopics[topic] {
		return "", fmt.Errorf("generator refused %s", topic)
	}
	return fmt.Sprintf("Here you go:\n```json\n{\"category\": \"Science\", \"subcategory\": %q, \"tags\": [{\"name\": %q, \"description\": \"writing about %s\"}]}\n```",
		topic, topic, topic), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var testPolicy = CallPolicy{
	Timeout:      5 * time.Second,
	Retries:      2,
	InitialDelay: time.Millisecond,
	Backoff:      2,
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	dir string

	ledger      persistence.LedgerStore
	meta        persistence.MetaStore
	chunks      *persistence.VectorStore
	tags        *persistence.VectorStore
	clusters    persistence.ClusterStore
	proposals   persistence.ProposalStore
	taxonomy    persistence.TaxonomyStore
	assignments persistence.AssignmentStore

	changes   *domainservice.ChangeTracker
	index     *domainservice.VectorIndex
	embedder  *fakeEmbedder
	generator *fakeGenerator

	indexer     *Indexer
	builder     *ClusterBuilder
	proposer    *Proposer
	normalizer  *Normalizer
	tagEmbedder *TagEmbedder
	assigner    *Assigner
	tagger      *Tagger
	pipeline    *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)

	chunks, err := persistence.NewVectorStore(ctx, db, search.CollectionChunks, nil)
	require.NoError(t, err)
	tags, err := persistence.NewVectorStore(ctx, db, search.CollectionTags, nil)
	require.NoError(t, err)
	chunker, err := loader.NewChunker(loader.DefaultChunkParams())
	require.NoError(t, err)

	f := &fixture{
		t:           t,
		ctx:         ctx,
		dir:         t.TempDir(),
		ledger:      persistence.NewLedgerStore(db),
		meta:        persistence.NewMetaStore(db),
		chunks:      chunks,
		tags:        tags,
		clusters:    persistence.NewClusterStore(db),
		proposals:   persistence.NewProposalStore(db),
		taxonomy:    persistence.NewTaxonomyStore(db),
		assignments: persistence.NewAssignmentStore(db),
		embedder:    &fakeEmbedder{},
		generator:   &fakeGenerator{failTopics: map[string]bool{}},
	}
	f.changes = domainservice.NewChangeTracker(f.ledger, nil, f.dir, nil)
	f.index = domainservice.NewVectorIndex(chunks, nil)
	textLoader := loader.NewTextLoader(f.dir, chunker, nil)

	f.indexer = NewIndexer(f.changes, f.index, f.ledger, textLoader, f.embedder, nil,
		WithDiscover(func(ctx context.Context) ([]string, error) {
			return loader.Discover(ctx, f.dir, nil, nil, nil)
		}),
		WithIndexCallPolicy(testPolicy),
		WithIndexMeta(f.meta, nil),
	)
	f.builder = NewClusterBuilder(f.ledger, f.index, f.clusters, nil, nil)
	f.proposer = NewProposer(f.clusters, f.index, f.proposals, f.generator, nil, nil,
		WithProposerCallPolicy(testPolicy))
	f.normalizer = NewNormalizer(f.proposals, f.taxonomy, nil, nil)
	f.tagEmbedder = NewTagEmbedder(f.taxonomy, tags, f.embedder, testPolicy, 2, nil, nil)
	f.assigner = NewAssigner(f.ledger, f.index, f.clusters, f.taxonomy, tags, f.assignments,
		assignment.DefaultWeights(), nil, nil)
	f.tagger = NewTagger(f.changes, f.index, textLoader, f.embedder, f.generator, f.clusters,
		f.taxonomy, tags, f.assignments, assignment.DefaultWeights(), testPolicy, nil)
	f.pipeline = NewPipeline(Components{
		Indexer:      f.indexer,
		Clusters:     f.builder,
		Proposer:     f.proposer,
		Normalizer:   f.normalizer,
		TagEmbedder:  f.tagEmbedder,
		Assigner:     f.assigner,
		Tagger:       f.tagger,
		Index:        f.index,
		Embedder:     f.embedder,
		Meta:         f.meta,
		ClusterStore: f.clusters,
		Taxonomy:     f.taxonomy,
		Assignments:  f.assignments,
		CallPolicy:   testPolicy,
	}, nil)
	return f
}

func (f *fixture) write(name, content string) {
	f.t.Helper()
	path := filepath.Join(f.dir, filepath.FromSlash(name))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

// seed writes n documents cycling through the topics and returns their
// paths.
func (f *fixture) seed(n int) []string {
	f.t.Helper()
	paths := make([]string, n)
	for i := range n {
		topic := topics[i%len(topics)]
		paths[i] = fmt.Sprintf("doc-%02d.md", i)
		f.write(paths[i], fmt.Sprintf("Field notes %d on %s.\n\n%s", i, topic, strings.Repeat(topic+" ", 3+i%4)))
	}
	return paths
}

func (f *fixture) rebuildParams() RebuildParams {
	return RebuildParams{
		Clusters:      BuildParams{Algorithm: "kmeans", K: len(topics)},
		SampleSize:    3,
		TopN:          3,
		MinConfidence: 0.3,
	}
}

func (f *fixture) indexAndRebuild(n int) {
	f.t.Helper()
	f.seed(n)
	requireOK(f.t, f.pipeline.Reprocess(f.ctx, nil))
	for _, r := range f.pipeline.RebuildTaxonomy(f.ctx, f.rebuildParams()) {
		requireOK(f.t, r)
	}
}

func requireOK(t *testing.T, r pipeline.Result) pipeline.Summary {
	t.Helper()
	require.NoError(t, pipeline.Err(r))
	require.True(t, r.OK())
	return r.Summary()
}
