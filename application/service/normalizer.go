package service

import (
	"context"
	"log/slog"

	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

// Normalizer merges the stored proposals into the canonical taxonomy.
type Normalizer struct {
	proposals taxonomy.ProposalStore
	taxonomy  taxonomy.Store
	trackers  TrackerFactory
	logger    *slog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(proposals taxonomy.ProposalStore, store taxonomy.Store, trackers TrackerFactory, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		proposals: proposals,
		taxonomy:  store,
		trackers:  trackersOrNoop(trackers),
		logger:    logger,
	}
}

// Normalize replaces the taxonomy with the one derived from the current
// proposals. The same proposals always produce the same taxonomy.
func (n *Normalizer) Normalize(ctx context.Context) pipeline.Result {
	tally := pipeline.NewTally(task.OperationNormalizeTaxonomy)
	tracker := n.trackers.ForOperation(task.OperationNormalizeTaxonomy)

	fail := func(err error) pipeline.Result {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	proposals, err := n.proposals.FindProposals(ctx)
	if err != nil {
		return fail(unavailable("load proposals", err))
	}
	if len(proposals) == 0 {
		return fail(ErrNoProposals)
	}
	tracker.SetTotal(ctx, len(proposals))

	result := taxonomy.Normalize(proposals)
	if err := n.taxonomy.Replace(ctx, result); err != nil {
		return fail(unavailable("replace taxonomy", err))
	}

	tally.AddProcessed(len(proposals))
	tally.Set(pipeline.CountProposals, len(proposals))
	tally.Set(pipeline.CountCategories, len(result.Categories()))
	tally.Set(pipeline.CountTags, len(result.Tags()))

	n.logger.Info("taxonomy normalized",
		slog.Int("proposals", len(proposals)),
		slog.Int("categories", len(result.Categories())),
		slog.Int("tags", len(result.Tags())),
	)
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}
