package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/pipeline"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
)

// BuildParams configures one clustering run.
type BuildParams struct {
	// Algorithm is "kmeans" (default) or "dbscan".
	Algorithm string
	// K is the number of k-means clusters; 0 picks one from the corpus size.
	K int
	// MaxDocuments caps how many documents are clustered; 0 means all.
	MaxDocuments int
	// Epsilon is the DBSCAN neighbourhood radius in cosine distance.
	Epsilon float64
	// MinPoints is the DBSCAN core point threshold.
	MinPoints int
}

// Validate checks the parameters.
func (p BuildParams) Validate() (cluster.Algorithm, error) {
	algorithm, err := cluster.ParseAlgorithm(p.Algorithm)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
	}
	if p.K < 0 || p.MaxDocuments < 0 {
		return "", fmt.Errorf("%w: k and max documents must not be negative", pipeline.ErrConfiguration)
	}
	if algorithm == cluster.AlgorithmDBSCAN && (p.Epsilon <= 0 || p.MinPoints < 1) {
		return "", fmt.Errorf("%w: dbscan needs epsilon > 0 and min points >= 1", pipeline.ErrConfiguration)
	}
	return algorithm, nil
}

// ClusterBuilder groups documents by their representative vectors. Every
// build replaces the stored cluster set under fresh cluster IDs.
type ClusterBuilder struct {
	ledger   ledger.Store
	index    *domainservice.VectorIndex
	clusters cluster.Store
	trackers TrackerFactory
	logger   *slog.Logger
}

// NewClusterBuilder creates a ClusterBuilder.
func NewClusterBuilder(
	ledgerStore ledger.Store,
	index *domainservice.VectorIndex,
	clusters cluster.Store,
	trackers TrackerFactory,
	logger *slog.Logger,
) *ClusterBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusterBuilder{
		ledger:   ledgerStore,
		index:    index,
		clusters: clusters,
		trackers: trackersOrNoop(trackers),
		logger:   logger,
	}
}

// Build clusters the indexed documents. Documents without chunks are
// skipped; DBSCAN noise is counted as unclustered.
func (b *ClusterBuilder) Build(ctx context.Context, params BuildParams) pipeline.Result {
	tally := pipeline.NewTally(task.OperationBuildClusters)
	tracker := b.trackers.ForOperation(task.OperationBuildClusters)

	fail := func(err error) pipeline.Result {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	algorithm, err := params.Validate()
	if err != nil {
		return fail(err)
	}

	docs, _, err := representatives(ctx, b.ledger, b.index, params.MaxDocuments, tally, b.logger)
	if err != nil {
		return fail(err)
	}
	if len(docs) == 0 {
		return fail(ErrNoDocuments)
	}
	tally.Set(pipeline.CountDocuments, len(docs))
	tracker.SetTotal(ctx, len(docs))

	points := make([]cluster.Point, len(docs))
	for i, d := range docs {
		points[i] = cluster.NewPoint(d.id, d.vector)
	}

	var outcome cluster.Outcome
	switch algorithm {
	case cluster.AlgorithmDBSCAN:
		outcome, err = cluster.DBSCAN(points, params.Epsilon, params.MinPoints)
	default:
		outcome, err = cluster.KMeans(points, params.K)
	}
	if err != nil {
		return fail(fmt.Errorf("cluster documents: %w: %w", pipeline.ErrIntegrity, err))
	}

	// Taxonomy rows refer to clusters by ID, so a new build never reuses one.
	base, err := b.clusters.NextID(ctx)
	if err != nil {
		return fail(unavailable("next cluster id", err))
	}
	outcome = outcome.Renumbered(base)

	if err := b.clusters.Replace(ctx, outcome.Clusters()); err != nil {
		return fail(unavailable("replace clusters", err))
	}

	tally.AddProcessed(outcome.MemberCount())
	tally.Set(pipeline.CountClusters, len(outcome.Clusters()))
	tally.Set(pipeline.CountUnclustered, len(outcome.Noise()))

	b.logger.Info("clusters built",
		slog.String("algorithm", string(algorithm)),
		slog.Int("documents", len(docs)),
		slog.Int("clusters", len(outcome.Clusters())),
		slog.Int("unclustered", len(outcome.Noise())),
	)
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}
