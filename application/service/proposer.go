package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/pipeline"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

// DefaultExcerptRunes caps each document excerpt sent for labelling.
const DefaultExcerptRunes = 1200

// ProposerOption configures a Proposer.
type ProposerOption func(*Proposer)

// WithProposerParallelism bounds concurrent generation calls.
func WithProposerParallelism(n int) ProposerOption {
	return func(p *Proposer) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithProposerCallPolicy sets the per-call timeout and retries.
func WithProposerCallPolicy(policy CallPolicy) ProposerOption {
	return func(p *Proposer) { p.policy = policy }
}

// WithExcerptRunes sets the excerpt length.
func WithExcerptRunes(n int) ProposerOption {
	return func(p *Proposer) {
		if n > 0 {
			p.excerptRunes = n
		}
	}
}

// Proposer asks the generator for a category, subcategory and tags for each
// cluster, based on the members nearest its centroid.
type Proposer struct {
	clusters     cluster.Store
	index        *domainservice.VectorIndex
	proposals    taxonomy.ProposalStore
	generator    domainservice.Generator
	policy       CallPolicy
	parallelism  int
	excerptRunes int
	trackers     TrackerFactory
	logger       *slog.Logger
}

// NewProposer creates a Proposer. generator may be nil, in which case
// Propose fails with a configuration error.
func NewProposer(
	clusters cluster.Store,
	index *domainservice.VectorIndex,
	proposals taxonomy.ProposalStore,
	generator domainservice.Generator,
	trackers TrackerFactory,
	logger *slog.Logger,
	opts ...ProposerOption,
) *Proposer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Proposer{
		clusters:     clusters,
		index:        index,
		proposals:    proposals,
		generator:    generator,
		policy:       DefaultCallPolicy(),
		parallelism:  DefaultParallelism,
		excerptRunes: DefaultExcerptRunes,
		trackers:     trackersOrNoop(trackers),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propose generates one proposal per cluster. A cluster whose call fails
// after retries is listed and skipped. The successful proposals replace the
// stored ones; when every cluster fails nothing is written.
func (p *Proposer) Propose(ctx context.Context, sampleSize int) pipeline.Result {
	tally := pipeline.NewTally(task.OperationProposeTaxonomy)
	tracker := p.trackers.ForOperation(task.OperationProposeTaxonomy)

	fail := func(err error) pipeline.Result {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	if sampleSize < 1 {
		return fail(fmt.Errorf("%w: sample size must be at least 1, got %d", pipeline.ErrConfiguration, sampleSize))
	}
	if p.generator == nil {
		return fail(ErrNoGenerator)
	}

	clusters, err := p.clusters.FindAll(ctx)
	if err != nil {
		return fail(unavailable("load clusters", err))
	}
	if len(clusters) == 0 {
		return fail(ErrNoClusters)
	}
	tally.Set(pipeline.CountClusters, len(clusters))
	tracker.SetTotal(ctx, len(clusters))

	var (
		mu        sync.Mutex
		proposals []taxonomy.Proposal
		errs      []error
		done      atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for _, c := range clusters {
		g.Go(func() error {
			proposal, err := p.proposeCluster(gctx, c, sampleSize)
			unit := fmt.Sprintf("cluster-%d", c.ID())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("taxonomy proposal failed",
					slog.Int("cluster", c.ID()),
					slog.String("error", err.Error()),
				)
				tally.Fail(unit, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", unit, err))
				mu.Unlock()
			} else {
				tally.Processed()
				mu.Lock()
				proposals = append(proposals, proposal)
				mu.Unlock()
			}
			tracker.SetCurrent(gctx, int(done.Add(1)), unit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	if len(proposals) == 0 {
		return fail(fmt.Errorf("propose taxonomy: every cluster failed: %w", errors.Join(errs...)))
	}

	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ClusterID() < proposals[j].ClusterID() })
	if err := p.proposals.ReplaceProposals(ctx, proposals); err != nil {
		return fail(unavailable("save proposals", err))
	}
	tally.Set(pipeline.CountProposals, len(proposals))

	p.logger.Info("taxonomy proposed",
		slog.Int("clusters", len(clusters)),
		slog.Int("proposals", len(proposals)),
		slog.Int("failed", len(errs)),
	)
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}

func (p *Proposer) proposeCluster(ctx context.Context, c cluster.Cluster, sampleSize int) (taxonomy.Proposal, error) {
	excerpts, err := p.excerpts(ctx, c, sampleSize)
	if err != nil {
		return taxonomy.Proposal{}, err
	}
	if len(excerpts) == 0 {
		return taxonomy.Proposal{}, fmt.Errorf("%w: cluster %d has no readable members", pipeline.ErrIntegrity, c.ID())
	}
	prompt := fmt.Sprintf(proposalTaskPrompt, len(excerpts), strings.Join(excerpts, "\n\n"))

	var proposal taxonomy.Proposal
	err = call(ctx, p.policy, p.logger, fmt.Sprintf("propose cluster %d", c.ID()), func(ctx context.Context) error {
		text, err := p.generator.Generate(ctx, prompt, proposalSystemPrompt)
		if err != nil {
			return err
		}
		proposal, err = parseProposal(c.ID(), text)
		return err
	})
	return proposal, err
}

// excerpts returns the first chunk of each sampled member, nearest the
// centroid first.
func (p *Proposer) excerpts(ctx context.Context, c cluster.Cluster, sampleSize int) ([]string, error) {
	var result []string
	for _, m := range c.Closest(sampleSize) {
		chunks, err := p.index.Chunks(ctx, m.DocumentID())
		if err != nil {
			return nil, unavailable("read chunks", err)
		}
		if len(chunks) == 0 {
			continue
		}
		result = append(result, fmt.Sprintf("<document path=%q>\n%s\n</document>",
			m.DocumentID(), truncate(chunks[0].Text(), p.excerptRunes)))
	}
	return result, nil
}
