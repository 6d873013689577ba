package service

import (
	"context"
	"log/slog"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

// Assigner scores every indexed document against the taxonomy and stores
// its top tags.
type Assigner struct {
	ledger      ledger.Store
	index       *domainservice.VectorIndex
	clusters    cluster.Store
	taxonomy    taxonomy.Store
	tags        search.VectorStore
	assignments assignment.Store
	scorer      assignment.Scorer
	trackers    TrackerFactory
	logger      *slog.Logger
}

// NewAssigner creates an Assigner.
func NewAssigner(
	ledgerStore ledger.Store,
	index *domainservice.VectorIndex,
	clusters cluster.Store,
	store taxonomy.Store,
	tags search.VectorStore,
	assignments assignment.Store,
	weights assignment.Weights,
	trackers TrackerFactory,
	logger *slog.Logger,
) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{
		ledger:      ledgerStore,
		index:       index,
		clusters:    clusters,
		taxonomy:    store,
		tags:        tags,
		assignments: assignments,
		scorer:      assignment.NewScorer(weights),
		trackers:    trackersOrNoop(trackers),
		logger:      logger,
	}
}

// Assign replaces each document's tag assignments. Clustered documents get
// their cluster's tags as a structural signal; every document is scored
// against the tag embeddings. Documents without chunks are skipped and
// lose any earlier assignments, as do documents no longer in the ledger.
func (a *Assigner) Assign(ctx context.Context, topN int, minConfidence float64) pipeline.Result {
	tally := pipeline.NewTally(task.OperationAssignTags)
	tracker := a.trackers.ForOperation(task.OperationAssignTags)

	fail := func(err error) pipeline.Result {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	limits, err := assignment.NewThresholds(topN, minConfidence)
	if err != nil {
		return fail(err)
	}

	tax, err := a.taxonomy.Load(ctx)
	if err != nil {
		return fail(unavailable("load taxonomy", err))
	}
	if tax.IsEmpty() {
		return fail(ErrEmptyTaxonomy)
	}
	vectors, err := tagVectors(ctx, a.tags)
	if err != nil {
		return fail(err)
	}
	vectors = knownTags(tax, vectors)
	if len(vectors) == 0 {
		return fail(ErrNoTagEmbeddings)
	}

	clusters, err := a.clusters.FindAll(ctx)
	if err != nil {
		return fail(unavailable("load clusters", err))
	}
	clusterOf := make(map[string]int)
	mapped := 0
	for _, c := range clusters {
		if len(tax.ClusterTags(c.ID())) > 0 {
			mapped++
		}
		for _, m := range c.Members() {
			clusterOf[m.DocumentID()] = c.ID()
		}
	}
	if len(clusters) > 0 && mapped == 0 {
		a.logger.Warn("taxonomy was built for another cluster set, scoring by tag embeddings only",
			slog.Int("clusters", len(clusters)),
		)
	}

	docs, skipped, err := representatives(ctx, a.ledger, a.index, 0, tally, a.logger)
	if err != nil {
		return fail(err)
	}
	tally.Set(pipeline.CountDocuments, len(docs))
	tracker.SetTotal(ctx, len(docs))

	total := 0
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		var clusterTags []string
		if id, ok := clusterOf[d.id]; ok {
			clusterTags = tax.ClusterTags(id)
		} else {
			tally.Add(pipeline.CountUnclustered, 1)
		}

		result := a.scorer.Score(d.id, similarities(d.vector, vectors), clusterTags, limits)
		if err := a.assignments.ReplaceForDocument(ctx, d.id, result); err != nil {
			a.logger.Warn("failed to store assignments",
				slog.String("document", d.id),
				slog.String("error", err.Error()),
			)
			tally.Fail(d.id, err)
		} else {
			tally.Processed()
			total += len(result)
		}
		tracker.SetCurrent(ctx, i+1, d.id)
	}

	if err := a.dropStale(ctx, skipped); err != nil {
		return fail(unavailable("drop stale assignments", err))
	}

	tally.Set(pipeline.CountAssignments, total)
	a.logger.Info("tags assigned",
		slog.Int("documents", len(docs)),
		slog.Int("assignments", total),
	)
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}

// staleBatchSize bounds the bound variables of one delete.
const staleBatchSize = 500

// dropStale removes assignments of documents that left the ledger and of
// the given skipped documents. Documents whose write failed keep their
// earlier assignments.
func (a *Assigner) dropStale(ctx context.Context, skipped []string) error {
	if err := a.assignments.DeleteUnindexed(ctx); err != nil {
		return err
	}
	for start := 0; start < len(skipped); start += staleBatchSize {
		batch := skipped[start:min(start+staleBatchSize, len(skipped))]
		if err := a.assignments.DeleteBy(ctx, query.WithConditionIn("document_id", batch)); err != nil {
			return err
		}
	}
	return nil
}

// knownTags keeps only the embeddings of tags in the taxonomy.
func knownTags(tax taxonomy.Taxonomy, vectors map[string][]float64) map[string][]float64 {
	result := make(map[string][]float64, len(vectors))
	for _, t := range tax.Tags() {
		if v, ok := vectors[t.Name()]; ok {
			result[t.Name()] = v
		}
	}
	return result
}
