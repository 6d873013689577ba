// Package tracking reports the progress of pipeline operations to logs and
// terminal progress bars.
package tracking

import (
	"context"

	"github.com/helixml/taxon/domain/task"
)

// Reporter receives status changes from a Tracker.
type Reporter interface {
	// OnChange is called when a task status changes.
	OnChange(ctx context.Context, status task.Status) error
}
