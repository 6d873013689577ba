package tracking

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/task"
)

type fakeReporter struct {
	mu       sync.Mutex
	statuses []task.Status
	err      error
}

func (f *fakeReporter) OnChange(_ context.Context, status task.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return f.err
}

func (f *fakeReporter) all() []task.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]task.Status, len(f.statuses))
	copy(out, f.statuses)
	return out
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown := NewCooldown(fake, time.Second)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cooldown.now = func() time.Time { return clock }

	status := task.NewStatus(task.OperationReprocess, nil).SetTotal(10)
	require.NoError(t, cooldown.OnChange(ctx, status))

	status = status.SetCurrent(1, "")
	require.NoError(t, cooldown.OnChange(ctx, status))
	status = status.SetCurrent(2, "")
	require.NoError(t, cooldown.OnChange(ctx, status))
	assert.Len(t, fake.all(), 2, "state change passes, repeat within interval is dropped")

	clock = clock.Add(time.Second)
	status = status.SetCurrent(3, "")
	require.NoError(t, cooldown.OnChange(ctx, status))
	assert.Len(t, fake.all(), 3)

	require.NoError(t, cooldown.OnChange(ctx, status.Complete()))
	got := fake.all()
	require.Len(t, got, 4)
	assert.Equal(t, task.ReportingStateCompleted, got[3].State())
	assert.Empty(t, cooldown.last)
}

func TestCooldown_SeparateIDs(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown := NewCooldown(fake, time.Hour)

	parent := task.NewStatus(task.OperationRebuildTaxonomy, nil)
	child := task.NewStatus(task.OperationProposeTaxonomy, &parent)

	require.NoError(t, cooldown.OnChange(ctx, parent.SetCurrent(1, "")))
	require.NoError(t, cooldown.OnChange(ctx, child.SetCurrent(1, "")))
	assert.Len(t, fake.all(), 2)
}

func TestTracker_NotifiesReporters(t *testing.T) {
	ctx := context.Background()
	first := &fakeReporter{err: errors.New("closed")}
	second := &fakeReporter{}

	factory := NewFactory(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), first).With(second)
	tracker := factory.Tracker(task.OperationAssignTags)

	tracker.SetTotal(ctx, 4)
	tracker.SetCurrent(ctx, 2, "halfway")
	tracker.Complete(ctx)

	for _, r := range []*fakeReporter{first, second} {
		got := r.all()
		require.Len(t, got, 3)
		assert.Equal(t, "halfway", got[1].Message())
		assert.Equal(t, task.ReportingStateCompleted, got[2].State())
		assert.Equal(t, 4, got[2].Current())
	}
}

func TestTracker_Child(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	parent := NewFactory(nil, fake).Tracker(task.OperationRebuildTaxonomy)

	child := parent.Child(task.OperationBuildClusters)
	child.Fail(ctx, "no documents")

	got := fake.all()
	require.Len(t, got, 1)
	assert.Equal(t, "taxon.taxonomy.rebuild/taxon.taxonomy.build_clusters", got[0].ID())
	assert.Equal(t, "no documents", got[0].Error())
	require.NotNil(t, got[0].Parent())
	assert.Equal(t, task.OperationRebuildTaxonomy, got[0].Parent().Operation())
}

func TestLoggingReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLoggingReporter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	ctx := context.Background()

	status := task.NewStatus(task.OperationEmbedTags, nil).SetTotal(3)
	require.NoError(t, r.OnChange(ctx, status.SetCurrent(1, "")))
	assert.Empty(t, buf.String(), "progress logs at debug")

	require.NoError(t, r.OnChange(ctx, status.Fail("provider down")))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "provider down")
}

func TestProgressReporter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	require.NoError(t, p.OnChange(ctx, task.NewStatus(task.OperationNormalizeTaxonomy, nil)))
	assert.Equal(t, 0, p.Active(), "no total, no bar")

	status := task.NewStatus(task.OperationReprocess, nil).SetTotal(5)
	require.NoError(t, p.OnChange(ctx, status))
	require.NoError(t, p.OnChange(ctx, status.SetCurrent(2, "")))
	assert.Equal(t, 1, p.Active())

	require.NoError(t, p.OnChange(ctx, status.Complete()))
	assert.Equal(t, 0, p.Active())
}
