package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

// RebuildParams configures a full taxonomy rebuild.
type RebuildParams struct {
	Clusters        BuildParams
	SampleSize      int
	UseDescriptions bool
	TopN            int
	MinConfidence   float64
}

// Validate checks every phase's parameters so a bad value fails the
// rebuild before the first write.
func (p RebuildParams) Validate() error {
	if _, err := p.Clusters.Validate(); err != nil {
		return err
	}
	if p.SampleSize < 1 {
		return fmt.Errorf("%w: sample size must be at least 1, got %d", pipeline.ErrConfiguration, p.SampleSize)
	}
	if _, err := assignment.NewThresholds(p.TopN, p.MinConfidence); err != nil {
		return err
	}
	return nil
}

// Components are the services and stores a Pipeline coordinates.
type Components struct {
	Indexer     *Indexer
	Clusters    *ClusterBuilder
	Proposer    *Proposer
	Normalizer  *Normalizer
	TagEmbedder *TagEmbedder
	Assigner    *Assigner
	Tagger      *Tagger

	Index        *domainservice.VectorIndex
	Embedder     search.Embedder
	Meta         meta.Store
	ClusterStore cluster.Store
	Taxonomy     taxonomy.Store
	Assignments  assignment.Store
	Trackers     TrackerFactory
	CallPolicy   CallPolicy
}

// Pipeline serialises writers against the index and taxonomy state.
// Mutating operations hold the write lock; Search, TagNew and the readers
// share the read lock.
type Pipeline struct {
	mu sync.RWMutex
	c  Components

	trackers TrackerFactory
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(c Components, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		c:        c,
		trackers: trackersOrNoop(c.Trackers),
		logger:   logger,
	}
}

// Reprocess indexes changed documents. See Indexer.Reprocess.
func (p *Pipeline) Reprocess(ctx context.Context, files []string) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Indexer.Reprocess(ctx, files)
}

// RebuildIndex wipes and reindexes every document.
func (p *Pipeline) RebuildIndex(ctx context.Context) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Indexer.RebuildIndex(ctx)
}

// RebuildClusters replaces the cluster set.
func (p *Pipeline) RebuildClusters(ctx context.Context, params BuildParams) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Clusters.Build(ctx, params)
}

// ProposeTaxonomy asks the generator for one proposal per cluster.
func (p *Pipeline) ProposeTaxonomy(ctx context.Context, sampleSize int) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Proposer.Propose(ctx, sampleSize)
}

// NormalizeTaxonomy merges the stored proposals into the taxonomy.
func (p *Pipeline) NormalizeTaxonomy(ctx context.Context) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Normalizer.Normalize(ctx)
}

// EmbedTags replaces the tag embeddings.
func (p *Pipeline) EmbedTags(ctx context.Context, useDescription bool) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.TagEmbedder.EmbedTags(ctx, useDescription)
}

// AssignTags replaces every document's tag assignments.
func (p *Pipeline) AssignTags(ctx context.Context, topN int, minConfidence float64) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Assigner.Assign(ctx, topN, minConfidence)
}

// RebuildTaxonomy runs the five taxonomy phases in order and returns the
// result of each phase that ran. It stops at the first failed phase; the
// state written by earlier phases is kept.
func (p *Pipeline) RebuildTaxonomy(ctx context.Context, params RebuildParams) []pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker := p.trackers.ForOperation(task.OperationRebuildTaxonomy)
	if err := params.Validate(); err != nil {
		finish(ctx, tracker, err)
		return []pipeline.Result{
			pipeline.Failed(err, pipeline.NewTally(task.OperationRebuildTaxonomy).Summary()),
		}
	}

	phases := []struct {
		operation task.Operation
		run       func() pipeline.Result
	}{
		{task.OperationBuildClusters, func() pipeline.Result { return p.c.Clusters.Build(ctx, params.Clusters) }},
		{task.OperationProposeTaxonomy, func() pipeline.Result { return p.c.Proposer.Propose(ctx, params.SampleSize) }},
		{task.OperationNormalizeTaxonomy, func() pipeline.Result { return p.c.Normalizer.Normalize(ctx) }},
		{task.OperationEmbedTags, func() pipeline.Result { return p.c.TagEmbedder.EmbedTags(ctx, params.UseDescriptions) }},
		{task.OperationAssignTags, func() pipeline.Result { return p.c.Assigner.Assign(ctx, params.TopN, params.MinConfidence) }},
	}

	tracker.SetTotal(ctx, len(phases))
	results := make([]pipeline.Result, 0, len(phases))
	for i, phase := range phases {
		tracker.SetCurrent(ctx, i, phase.operation.Short())
		started := time.Now()
		result := phase.run()
		results = append(results, result)

		s := result.Summary()
		p.logger.Info("taxonomy phase finished",
			slog.String("phase", phase.operation.Short()),
			slog.Bool("ok", result.OK()),
			slog.Int("processed", s.Processed()),
			slog.Int("skipped", s.Skipped()),
			slog.Int("failed", s.Failed()),
			slog.Duration("duration", time.Since(started)),
		)
		if err := pipeline.Err(result); err != nil {
			finish(ctx, tracker, fmt.Errorf("%s: %w", phase.operation.Short(), err))
			return results
		}
	}

	if p.c.Meta != nil {
		if err := p.c.Meta.Set(ctx, meta.KeyTaxonomyBuiltAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			p.logger.Warn("failed to record taxonomy build time", slog.String("error", err.Error()))
		}
	}
	tracker.Complete(ctx)
	return results
}

// TagNew suggests tags for one document against the current taxonomy.
func (p *Pipeline) TagNew(ctx context.Context, path string, params TagParams) (TagResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker := p.trackers.ForOperation(task.OperationTagDocument)
	tracker.SetTotal(ctx, 1)
	result, err := p.c.Tagger.TagNew(ctx, path, params)
	finish(ctx, tracker, err)
	return result, err
}

// Search embeds text and returns the k closest chunks.
func (p *Pipeline) Search(ctx context.Context, text string, k int) ([]domainservice.ChunkMatch, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", pipeline.ErrConfiguration, k)
	}
	if p.c.Embedder == nil {
		return nil, ErrNoEmbedder
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var vector []float64
	err := call(ctx, p.c.CallPolicy, p.logger, "embed query", func(ctx context.Context) error {
		v, err := p.c.Embedder.Embed(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(v) != 1 {
			return fmt.Errorf("%w: got %d, want 1", errEmbeddingCount, len(v))
		}
		vector = v[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return p.c.Index.Search(ctx, vector, k, search.NewFilter())
}

// Taxonomy returns the current taxonomy.
func (p *Pipeline) Taxonomy(ctx context.Context) (taxonomy.Taxonomy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.c.Taxonomy.Load(ctx)
}

// Clusters returns the current cluster set.
func (p *Pipeline) Clusters(ctx context.Context) ([]cluster.Cluster, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.c.ClusterStore.FindAll(ctx)
}

// Assignments returns stored tag assignments.
func (p *Pipeline) Assignments(ctx context.Context, options ...query.Option) ([]assignment.Assignment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.c.Assignments.Find(ctx, options...)
}

// CountAssignments counts stored tag assignments matching options.
func (p *Pipeline) CountAssignments(ctx context.Context, options ...query.Option) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.c.Assignments.Count(ctx, options...)
}

// LastTaxonomyBuild returns when the last complete rebuild finished.
func (p *Pipeline) LastTaxonomyBuild(ctx context.Context) (time.Time, bool, error) {
	if p.c.Meta == nil {
		return time.Time{}, false, nil
	}
	value, ok, err := p.c.Meta.Get(ctx, meta.KeyTaxonomyBuiltAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", meta.KeyTaxonomyBuiltAt, err)
	}
	return at, true, nil
}
