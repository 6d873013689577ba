package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/internal/config"
)

type countingReprocessor struct {
	mu    sync.Mutex
	calls int
	files [][]string
}

func (c *countingReprocessor) Reprocess(_ context.Context, files []string) pipeline.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.files = append(c.files, files)
	return pipeline.Succeeded(pipeline.NewTally(task.OperationReprocess).Summary())
}

func (c *countingReprocessor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestPeriodicReprocess_Disabled(t *testing.T) {
	target := &countingReprocessor{}
	p := NewPeriodicReprocess(config.NewReindexConfig(), target, nil)

	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	assert.Zero(t, target.count())
}

func TestPeriodicReprocess_RunsOnStartAndOnTick(t *testing.T) {
	target := &countingReprocessor{}
	cfg := config.NewReindexConfig().WithEnabled(true).WithInterval(10 * time.Millisecond)
	p := NewPeriodicReprocess(cfg, target, nil)

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return target.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	stopped := target.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, target.count(), "no runs after Stop")
	for _, files := range target.files {
		assert.Nil(t, files, "periodic runs use discovery")
	}
}

func TestPeriodicReprocess_StopWithoutStart(t *testing.T) {
	p := NewPeriodicReprocess(config.NewReindexConfig(), &countingReprocessor{}, nil)
	p.Stop()
}
