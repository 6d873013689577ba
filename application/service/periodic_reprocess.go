package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/internal/config"
)

// Reprocessor runs a discovery-mode reprocess.
type Reprocessor interface {
	Reprocess(ctx context.Context, files []string) pipeline.Result
}

// PeriodicReprocess reprocesses the documents root on a timer so edits
// made outside the CLI reach the index.
type PeriodicReprocess struct {
	target   Reprocessor
	logger   *slog.Logger
	interval time.Duration
	enabled  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPeriodicReprocess creates a PeriodicReprocess from config.
func NewPeriodicReprocess(cfg config.ReindexConfig, target Reprocessor, logger *slog.Logger) *PeriodicReprocess {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicReprocess{
		target:   target,
		logger:   logger,
		interval: cfg.Interval(),
		enabled:  cfg.Enabled() && cfg.Interval() > 0,
	}
}

// Start begins reprocessing in a background goroutine.
// If disabled, this is a no-op.
func (p *PeriodicReprocess) Start(ctx context.Context) {
	if !p.enabled {
		p.logger.Info("periodic reprocess disabled")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		p.run(ctx)
	})

	p.logger.Info("periodic reprocess started", slog.Duration("interval", p.interval))
}

// Stop cancels the background goroutine and waits for it to finish.
func (p *PeriodicReprocess) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("periodic reprocess stopped")
}

func (p *PeriodicReprocess) run(ctx context.Context) {
	// Reprocess immediately on startup
	p.reprocess(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reprocess(ctx)
		}
	}
}

func (p *PeriodicReprocess) reprocess(ctx context.Context) {
	result := p.target.Reprocess(ctx, nil)
	if ctx.Err() != nil {
		return
	}
	s := result.Summary()
	if err := pipeline.Err(result); err != nil {
		p.logger.Error("periodic reprocess failed",
			slog.String("kind", string(pipeline.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("periodic reprocess finished",
		slog.Int("processed", s.Processed()),
		slog.Int("skipped", s.Skipped()),
		slog.Int("failed", s.Failed()),
	)
}
