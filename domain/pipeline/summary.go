package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/helixml/taxon/domain/task"
)

// Count keys used across phases.
const (
	CountDocuments   = "documents"
	CountClusters    = "clusters"
	CountUnclustered = "unclustered"
	CountProposals   = "proposals"
	CountCategories  = "categories"
	CountTags        = "tags"
	CountAssignments = "assignments"
	CountChunks      = "chunks"
	CountPruned      = "pruned"
	CountRevision    = "revision_changed"
)

// UnitFailure records one file, cluster or document that failed or was skipped.
type UnitFailure struct {
	unit    string
	kind    ErrorKind
	message string
}

// NewUnitFailure creates a UnitFailure.
func NewUnitFailure(unit string, kind ErrorKind, message string) UnitFailure {
	return UnitFailure{unit: unit, kind: kind, message: message}
}

// Unit returns the identifier of the failed unit.
func (f UnitFailure) Unit() string { return f.unit }

// Kind returns the failure kind.
func (f UnitFailure) Kind() ErrorKind { return f.kind }

// Message returns the failure message.
func (f UnitFailure) Message() string { return f.message }

// String returns a readable representation.
func (f UnitFailure) String() string {
	return fmt.Sprintf("%s [%s]: %s", f.unit, f.kind, f.message)
}

// Summary holds the counts produced by one phase.
type Summary struct {
	operation task.Operation
	processed int
	skipped   int
	failed    int
	counts    map[string]int
	failures  []UnitFailure
}

// Operation returns the phase the summary belongs to.
func (s Summary) Operation() task.Operation { return s.operation }

// Processed returns the number of units that succeeded.
func (s Summary) Processed() int { return s.processed }

// Skipped returns the number of units skipped for integrity reasons or
// because they were already up to date.
func (s Summary) Skipped() int { return s.skipped }

// Failed returns the number of units that failed.
func (s Summary) Failed() int { return s.failed }

// Count returns a named count, zero when unset.
func (s Summary) Count(key string) int { return s.counts[key] }

// Counts returns a copy of every named count.
func (s Summary) Counts() map[string]int {
	result := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		result[k] = v
	}
	return result
}

// Failures returns the failed and skipped units, sorted by unit.
func (s Summary) Failures() []UnitFailure {
	result := make([]UnitFailure, len(s.failures))
	copy(result, s.failures)
	return result
}

// Tally accumulates a Summary while a phase runs. It is safe for
// concurrent use.
type Tally struct {
	mu      sync.Mutex
	summary Summary
}

// NewTally creates a Tally for the given operation.
func NewTally(operation task.Operation) *Tally {
	return &Tally{summary: Summary{operation: operation, counts: map[string]int{}}}
}

// Processed counts one successful unit.
func (t *Tally) Processed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.processed++
}

// Skip counts a skipped unit. A non-empty reason is listed in the failures.
func (t *Tally) Skip(unit string, kind ErrorKind, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.skipped++
	if reason != "" {
		t.summary.failures = append(t.summary.failures, NewUnitFailure(unit, kind, reason))
	}
}

// AddProcessed counts n successful units.
func (t *Tally) AddProcessed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.processed += n
}

// AddSkipped counts n units skipped without a listed reason.
func (t *Tally) AddSkipped(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.skipped += n
}

// Fail counts a failed unit and lists it.
func (t *Tally) Fail(unit string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.failed++
	t.summary.failures = append(t.summary.failures, NewUnitFailure(unit, KindOf(err), err.Error()))
}

// Add increments a named count.
func (t *Tally) Add(key string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.counts[key] += n
}

// Set overwrites a named count.
func (t *Tally) Set(key string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.counts[key] = n
}

// Summary returns a snapshot with failures sorted by unit.
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary
	s.counts = make(map[string]int, len(t.summary.counts))
	for k, v := range t.summary.counts {
		s.counts[k] = v
	}
	s.failures = make([]UnitFailure, len(t.summary.failures))
	copy(s.failures, t.summary.failures)
	sort.SliceStable(s.failures, func(i, j int) bool {
		return s.failures[i].unit < s.failures[j].unit
	})
	return s
}
