package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/helixml/taxon/domain/task"
)

var _ Reporter = (*Cooldown)(nil)

// Cooldown forwards at most one in-progress update per status ID per
// interval. State changes and terminal states are always forwarded.
type Cooldown struct {
	inner    Reporter
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]delivery
}

type delivery struct {
	at    time.Time
	state task.ReportingState
}

// NewCooldown wraps inner.
func NewCooldown(inner Reporter, interval time.Duration) *Cooldown {
	return &Cooldown{
		inner:    inner,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]delivery),
	}
}

// OnChange forwards status unless an update for the same ID and state was
// forwarded less than interval ago.
func (c *Cooldown) OnChange(ctx context.Context, status task.Status) error {
	id := status.ID()
	state := status.State()
	now := c.now()

	c.mu.Lock()
	if state.IsTerminal() {
		delete(c.last, id)
		c.mu.Unlock()
		return c.inner.OnChange(ctx, status)
	}
	prev, seen := c.last[id]
	if seen && prev.state == state && now.Sub(prev.at) < c.interval {
		c.mu.Unlock()
		return nil
	}
	c.last[id] = delivery{at: now, state: state}
	c.mu.Unlock()

	return c.inner.OnChange(ctx, status)
}
