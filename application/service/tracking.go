// Package service runs the indexing and taxonomy phases over the domain
// stores and ports.
package service

import (
	"context"

	"github.com/helixml/taxon/domain/task"
)

// Tracker receives progress for one running operation.
type Tracker interface {
	SetTotal(ctx context.Context, total int)
	SetCurrent(ctx context.Context, current int, message string)
	Skip(ctx context.Context, message string)
	Fail(ctx context.Context, message string)
	Complete(ctx context.Context)
}

// TrackerFactory creates trackers for progress reporting.
type TrackerFactory interface {
	ForOperation(operation task.Operation) Tracker
}

type noopTracker struct{}

func (noopTracker) SetTotal(context.Context, int)           {}
func (noopTracker) SetCurrent(context.Context, int, string) {}
func (noopTracker) Skip(context.Context, string)            {}
func (noopTracker) Fail(context.Context, string)            {}
func (noopTracker) Complete(context.Context)                {}

type noopFactory struct{}

func (noopFactory) ForOperation(task.Operation) Tracker { return noopTracker{} }

// NoopTrackers returns a TrackerFactory that discards progress.
func NoopTrackers() TrackerFactory { return noopFactory{} }

func trackersOrNoop(f TrackerFactory) TrackerFactory {
	if f == nil {
		return NoopTrackers()
	}
	return f
}

// finish marks the tracker from a phase result.
func finish(ctx context.Context, tracker Tracker, err error) {
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return
	}
	tracker.Complete(ctx)
}
