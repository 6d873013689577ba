package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/search"
)

type memLedger struct {
	mu      sync.Mutex
	records map[string]ledger.Record
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]ledger.Record{}}
}

func (m *memLedger) Find(_ context.Context, options ...query.Option) ([]ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := query.Build(options...)
	var result []ledger.Record
	for _, r := range m.records {
		if matchesPath(q, r.Path()) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path() < result[j].Path() })
	return result, nil
}

func matchesPath(q query.Query, path string) bool {
	for _, c := range q.Conditions() {
		if c.Field() != "path" {
			continue
		}
		if c.In() {
			found := false
			for _, p := range c.Value().([]string) {
				if p == path {
					found = true
				}
			}
			if !found {
				return false
			}
		} else if c.Value() != path {
			return false
		}
	}
	return true
}

func (m *memLedger) Save(_ context.Context, r ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.Path()] = r
	return nil
}

func (m *memLedger) SaveAll(ctx context.Context, records []ledger.Record) error {
	for _, r := range records {
		_ = m.Save(ctx, r)
	}
	return nil
}

func (m *memLedger) Count(ctx context.Context, options ...query.Option) (int64, error) {
	r, _ := m.Find(ctx, options...)
	return int64(len(r)), nil
}

func (m *memLedger) DeleteBy(ctx context.Context, options ...query.Option) error {
	found, _ := m.Find(ctx, options...)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range found {
		delete(m.records, r.Path())
	}
	return nil
}

// memVectors is a VectorStore without Replace.
type memVectors struct {
	mu        sync.Mutex
	records   map[string]search.Record
	failWrite error
	failDel   error
}

func newMemVectors() *memVectors {
	return &memVectors{records: map[string]search.Record{}}
}

func (m *memVectors) Upsert(_ context.Context, records []search.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range records {
		if m.failWrite != nil && i == len(records)/2 {
			return m.failWrite
		}
		m.records[r.ID()] = r
	}
	return nil
}

func (m *memVectors) matching(filter search.Filter) []search.Record {
	var result []search.Record
	for _, r := range m.records {
		if filter.Matches(r.Metadata()) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

func (m *memVectors) Query(_ context.Context, vector []float64, k int, filter search.Filter) ([]search.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return search.TopK(vector, m.matching(filter), k), nil
}

func (m *memVectors) Delete(_ context.Context, filter search.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel != nil && !filter.IsEmpty() && filter.Conditions()[len(filter.Conditions())-1].Negate() {
		return m.failDel
	}
	for _, r := range m.matching(filter) {
		delete(m.records, r.ID())
	}
	return nil
}

func (m *memVectors) Count(_ context.Context, filter search.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(filter)), nil
}

func (m *memVectors) Get(_ context.Context, filter search.Filter) ([]search.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matching(filter), nil
}

// replacingVectors adds an atomic Replace.
type replacingVectors struct {
	*memVectors
	replaced int
}

func (r *replacingVectors) Replace(_ context.Context, filter search.Filter, records []search.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	for _, old := range r.matching(filter) {
		delete(r.records, old.ID())
	}
	for _, rec := range records {
		r.records[rec.ID()] = rec
	}
	r.replaced++
	return nil
}

type fakeVCS struct {
	repo      bool
	revisions map[string]string
	err       error
}

func (f *fakeVCS) IsRepository(context.Context) bool { return f.repo }

func (f *fakeVCS) CurrentRevision(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "head", nil
}

func (f *fakeVCS) LastRevisionTouching(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.revisions[path], nil
}

var errStoreDown = errors.New("store down")
