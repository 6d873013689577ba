package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helixml/taxon/domain/task"
)

// Tracker wraps a Status and pushes every change to its reporters.
type Tracker struct {
	status      task.Status
	subscribers []Reporter
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewTracker creates a Tracker wrapping status.
func NewTracker(status task.Status, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		status: status,
		logger: logger,
	}
}

// Status returns a copy of the current Status.
func (t *Tracker) Status() task.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Subscribe adds a reporter.
func (t *Tracker) Subscribe(reporter Reporter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, reporter)
}

// SetTotal sets the number of units the operation will process.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.update(ctx, func(s task.Status) task.Status { return s.SetTotal(total) })
}

// SetCurrent records progress and an optional message.
func (t *Tracker) SetCurrent(ctx context.Context, current int, message string) {
	t.update(ctx, func(s task.Status) task.Status { return s.SetCurrent(current, message) })
}

// Skip marks the operation skipped.
func (t *Tracker) Skip(ctx context.Context, reason string) {
	t.update(ctx, func(s task.Status) task.Status { return s.Skip(reason) })
}

// Fail marks the operation failed.
func (t *Tracker) Fail(ctx context.Context, errMsg string) {
	t.update(ctx, func(s task.Status) task.Status { return s.Fail(errMsg) })
}

// Complete marks the operation completed.
func (t *Tracker) Complete(ctx context.Context) {
	t.update(ctx, func(s task.Status) task.Status { return s.Complete() })
}

// Child creates a tracker for a sub-operation sharing this tracker's
// reporters.
func (t *Tracker) Child(operation task.Operation) *Tracker {
	t.mu.RLock()
	parent := t.status
	subscribers := make([]Reporter, len(t.subscribers))
	copy(subscribers, t.subscribers)
	t.mu.RUnlock()

	return &Tracker{
		status:      task.NewStatus(operation, &parent),
		subscribers: subscribers,
		logger:      t.logger,
	}
}

// Notify announces the current status without changing it.
func (t *Tracker) Notify(ctx context.Context) {
	t.notify(ctx, t.Status())
}

func (t *Tracker) update(ctx context.Context, fn func(task.Status) task.Status) {
	t.mu.Lock()
	t.status = fn(t.status)
	status := t.status
	t.mu.Unlock()

	t.notify(ctx, status)
}

func (t *Tracker) notify(ctx context.Context, status task.Status) {
	t.mu.RLock()
	subscribers := make([]Reporter, len(t.subscribers))
	copy(subscribers, t.subscribers)
	t.mu.RUnlock()

	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, status); err != nil {
			t.logger.Error("failed to notify reporter",
				slog.String("error", err.Error()),
				slog.String("operation", status.Operation().String()),
			)
		}
	}
}

// Factory creates trackers that report to a fixed set of reporters.
type Factory struct {
	reporters []Reporter
	logger    *slog.Logger
}

// NewFactory creates a Factory.
func NewFactory(logger *slog.Logger, reporters ...Reporter) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{reporters: reporters, logger: logger}
}

// With returns a Factory that also reports to reporter.
func (f *Factory) With(reporter Reporter) *Factory {
	reporters := make([]Reporter, len(f.reporters), len(f.reporters)+1)
	copy(reporters, f.reporters)
	return &Factory{reporters: append(reporters, reporter), logger: f.logger}
}

// Tracker creates a root tracker for operation.
func (f *Factory) Tracker(operation task.Operation) *Tracker {
	t := NewTracker(task.NewStatus(operation, nil), f.logger)
	for _, r := range f.reporters {
		t.Subscribe(r)
	}
	return t
}
