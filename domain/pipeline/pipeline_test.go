package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/helixml/taxon/domain/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyError struct{}

func (flakyError) Error() string   { return "rate limited" }
func (flakyError) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"configuration", fmt.Errorf("check thresholds: %w", ErrConfiguration), KindConfiguration},
		{"unavailable", fmt.Errorf("open store: %w", ErrUnavailable), KindUnavailable},
		{"integrity", fmt.Errorf("doc: %w", ErrIntegrity), KindIntegrity},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindTransient},
		{"temporary", fmt.Errorf("call: %w", flakyError{}), KindTransient},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
	assert.Empty(t, KindOf(nil))
	assert.True(t, IsRetryable(flakyError{}))
}

func TestTally_ConcurrentCounts(t *testing.T) {
	tally := NewTally(task.OperationProposeTaxonomy)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				tally.Fail(fmt.Sprintf("cluster-%d", i), flakyError{})
				return
			}
			tally.Processed()
			tally.Add(CountProposals, 1)
		}(i)
	}
	wg.Wait()

	s := tally.Summary()
	assert.Equal(t, 8, s.Processed())
	assert.Equal(t, 2, s.Failed())
	assert.Equal(t, 8, s.Count(CountProposals))
	require.Len(t, s.Failures(), 2)
	assert.Equal(t, "cluster-0", s.Failures()[0].Unit())
	assert.Equal(t, KindTransient, s.Failures()[0].Kind())
}

func TestResult_TypeSwitch(t *testing.T) {
	tally := NewTally(task.OperationNormalizeTaxonomy)
	tally.Set(CountTags, 3)

	var r Result = Succeeded(tally.Summary())
	assert.True(t, r.OK())
	assert.NoError(t, Err(r))

	r = Failed(fmt.Errorf("write: %w", ErrUnavailable), tally.Summary())
	switch f := r.(type) {
	case Failure:
		assert.Equal(t, KindUnavailable, f.Kind())
		assert.Equal(t, 3, f.Summary().Count(CountTags))
		assert.ErrorIs(t, Err(r), ErrUnavailable)
	default:
		t.Fatalf("expected Failure, got %T", r)
	}
}
