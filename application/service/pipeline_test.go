package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/task"
)

type recordedEvent struct {
	operation task.Operation
	event     string
	message   string
}

type recordingTrackers struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingTrackers) ForOperation(operation task.Operation) Tracker {
	return &recordingTracker{parent: r, operation: operation}
}

func (r *recordingTrackers) record(operation task.Operation, event, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{operation: operation, event: event, message: message})
}

func (r *recordingTrackers) terminal(operation task.Operation) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []recordedEvent
	for _, e := range r.events {
		if e.operation == operation && (e.event == "complete" || e.event == "fail") {
			result = append(result, e)
		}
	}
	return result
}

type recordingTracker struct {
	parent    *recordingTrackers
	operation task.Operation
}

func (t *recordingTracker) SetTotal(context.Context, int) {}

func (t *recordingTracker) SetCurrent(_ context.Context, _ int, message string) {
	t.parent.record(t.operation, "current", message)
}

func (t *recordingTracker) Skip(_ context.Context, message string) {
	t.parent.record(t.operation, "skip", message)
}

func (t *recordingTracker) Fail(_ context.Context, message string) {
	t.parent.record(t.operation, "fail", message)
}

func (t *recordingTracker) Complete(context.Context) {
	t.parent.record(t.operation, "complete", "")
}

func TestPipeline_RebuildTaxonomy_RunsEveryPhaseInOrder(t *testing.T) {
	f := newFixture(t)
	trackers := &recordingTrackers{}
	f.pipeline = NewPipeline(Components{
		Indexer:     f.indexer,
		Clusters:    f.builder,
		Proposer:    f.proposer,
		Normalizer:  f.normalizer,
		TagEmbedder: f.tagEmbedder,
		Assigner:    f.assigner,
		Meta:        f.meta,
		Trackers:    trackers,
	}, nil)
	f.seed(20)
	requireOK(t, f.pipeline.Reprocess(f.ctx, nil))

	results := f.pipeline.RebuildTaxonomy(f.ctx, f.rebuildParams())
	require.Len(t, results, 5)
	for i, op := range task.TaxonomyPhases() {
		assert.True(t, results[i].OK(), op.String())
		assert.Equal(t, op, results[i].Summary().Operation())
	}
	assert.Equal(t, 20, results[4].Summary().Count(pipeline.CountAssignments))

	require.Len(t, trackers.terminal(task.OperationRebuildTaxonomy), 1)
	assert.Equal(t, "complete", trackers.terminal(task.OperationRebuildTaxonomy)[0].event)

	at, ok, err := f.pipeline.LastTaxonomyBuild(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestPipeline_RebuildTaxonomy_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(10)
	requireOK(t, f.pipeline.Reprocess(f.ctx, nil))
	for _, topic := range topics {
		f.generator.failTopics[topic] = true
	}

	results := f.pipeline.RebuildTaxonomy(f.ctx, f.rebuildParams())
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())

	tax, err := f.pipeline.Taxonomy(f.ctx)
	require.NoError(t, err)
	assert.True(t, tax.IsEmpty())
	clusters, err := f.pipeline.Clusters(f.ctx)
	require.NoError(t, err)
	assert.Len(t, clusters, 5, "earlier phases keep their output")

	_, ok, err := f.pipeline.LastTaxonomyBuild(f.ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipeline_RebuildTaxonomy_InvalidParamsWriteNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(10)
	requireOK(t, f.pipeline.Reprocess(f.ctx, nil))

	params := f.rebuildParams()
	params.MinConfidence = 1.5
	results := f.pipeline.RebuildTaxonomy(f.ctx, params)
	require.Len(t, results, 1)
	assert.ErrorIs(t, pipeline.Err(results[0]), pipeline.ErrConfiguration)

	n, err := f.clusters.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipeline_Search(t *testing.T) {
	f := newFixture(t)
	f.seed(10)
	requireOK(t, f.pipeline.Reprocess(f.ctx, nil))

	matches, err := f.pipeline.Search(f.ctx, "geology", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Contains(t, []string{"doc-03.md", "doc-08.md"}, m.Chunk().SourceFile())
		assert.Greater(t, m.Score(), 0.9)
	}

	_, err = f.pipeline.Search(f.ctx, "geology", 0)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}

func TestPipeline_ReadersRunAlongsideWriters(t *testing.T) {
	f := newFixture(t)
	f.indexAndRebuild(10)
	f.write("extra.md", "More botany.")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 4 {
		wg.Go(func() {
			if _, err := f.pipeline.Search(f.ctx, "finance", 3); err != nil {
				errs <- err
			}
			if _, err := f.pipeline.TagNew(f.ctx, "doc-01.md", defaultTagParams()); err != nil {
				errs <- err
			}
		})
	}
	wg.Go(func() {
		if err := pipeline.Err(f.pipeline.Reprocess(f.ctx, nil)); err != nil {
			errs <- err
		}
	})
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := f.pipeline.Assignments(f.ctx, assignment.WithTag("botany"))
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}
