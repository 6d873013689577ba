package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/search"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

// DefaultTagBatchSize is the number of tags sent per embedding call.
const DefaultTagBatchSize = 32

// TagEmbedder stores one vector per canonical tag in the tags collection.
type TagEmbedder struct {
	taxonomy    taxonomy.Store
	tags        search.VectorStore
	embedder    search.Embedder
	policy      CallPolicy
	parallelism int
	batchSize   int
	trackers    TrackerFactory
	logger      *slog.Logger
}

// NewTagEmbedder creates a TagEmbedder.
func NewTagEmbedder(
	store taxonomy.Store,
	tags search.VectorStore,
	embedder search.Embedder,
	policy CallPolicy,
	parallelism int,
	trackers TrackerFactory,
	logger *slog.Logger,
) *TagEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	return &TagEmbedder{
		taxonomy:    store,
		tags:        tags,
		embedder:    embedder,
		policy:      policy,
		parallelism: parallelism,
		batchSize:   DefaultTagBatchSize,
		trackers:    trackersOrNoop(trackers),
		logger:      logger,
	}
}

// EmbedTags embeds every tag of the current taxonomy, as "name" or as
// "name: description", and replaces the whole tags collection. Any failed
// batch fails the phase and leaves the previous collection in place.
func (e *TagEmbedder) EmbedTags(ctx context.Context, useDescription bool) pipeline.Result {
	tally := pipeline.NewTally(task.OperationEmbedTags)
	tracker := e.trackers.ForOperation(task.OperationEmbedTags)

	fail := func(err error) pipeline.Result {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	if e.embedder == nil {
		return fail(ErrNoEmbedder)
	}
	tax, err := e.taxonomy.Load(ctx)
	if err != nil {
		return fail(unavailable("load taxonomy", err))
	}
	if tax.IsEmpty() {
		return fail(ErrEmptyTaxonomy)
	}

	tags := tax.Tags()
	vectors := make([][]float64, len(tags))
	tracker.SetTotal(ctx, len(tags))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for start := 0; start < len(tags); start += e.batchSize {
		end := min(start+e.batchSize, len(tags))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, t := range tags[start:end] {
				texts = append(texts, t.EmbeddingText(useDescription))
			}
			return call(gctx, e.policy, e.logger, "embed tags", func(ctx context.Context) error {
				v, err := e.embedder.Embed(ctx, texts)
				if err != nil {
					return err
				}
				if len(v) != len(texts) {
					return fmt.Errorf("%w: got %d, want %d", errEmbeddingCount, len(v), len(texts))
				}
				copy(vectors[start:end], v)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fail(fmt.Errorf("embed tags: %w", err))
	}

	gen := uuid.NewString()[:8]
	records := make([]search.Record, len(tags))
	for i, t := range tags {
		meta, err := search.NewMetadata(map[string]any{
			search.MetaTag:         t.Name(),
			search.MetaDescription: t.Description(),
			search.MetaGeneration:  gen,
		})
		if err != nil {
			return fail(fmt.Errorf("tag %q: %w: %w", t.Name(), pipeline.ErrIntegrity, err))
		}
		records[i] = search.NewRecord(t.Name(), t.EmbeddingText(useDescription), vectors[i], meta)
	}

	if err := e.replaceAll(ctx, gen, records); err != nil {
		return fail(unavailable("replace tag embeddings", err))
	}

	tally.AddProcessed(len(tags))
	tally.Set(pipeline.CountTags, len(tags))
	e.logger.Info("tags embedded", slog.Int("tags", len(tags)), slog.Bool("descriptions", useDescription))
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}

// replaceAll swaps the collection for records, in one transaction when the
// store supports it.
func (e *TagEmbedder) replaceAll(ctx context.Context, gen string, records []search.Record) error {
	if r, ok := e.tags.(search.Replacer); ok {
		return r.Replace(ctx, search.NewFilter(), records)
	}
	if err := e.tags.Upsert(ctx, records); err != nil {
		return err
	}
	return e.tags.Delete(ctx, search.NewFilter().WhereNot(search.MetaGeneration, gen))
}

// tagVectors loads the stored tag embeddings keyed by tag name.
func tagVectors(ctx context.Context, store search.VectorStore) (map[string][]float64, error) {
	records, err := store.Get(ctx, search.NewFilter())
	if err != nil {
		return nil, unavailable("load tag embeddings", err)
	}
	result := make(map[string][]float64, len(records))
	for _, r := range records {
		name := r.Metadata().Get(search.MetaTag)
		if name == "" {
			name = r.ID()
		}
		result[name] = r.Vector()
	}
	return result, nil
}

// similarities scores vector against every tag embedding.
func similarities(vector []float64, tags map[string][]float64) map[string]float64 {
	result := make(map[string]float64, len(tags))
	for name, v := range tags {
		result[name] = search.CosineSimilarity(vector, v)
	}
	return result
}
