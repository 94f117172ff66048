package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRecordStore keeps records in process memory. Useful for tests and
// for single-process deployments that do not need persistence.
type MemoryRecordStore struct {
	mu     sync.RWMutex
	stores map[string]*memPartition
}

type memPartition struct {
	seq     int64
	records []Record
}

// NewMemoryRecordStore creates an empty in-process store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{stores: make(map[string]*memPartition)}
}

func (s *MemoryRecordStore) Append(_ context.Context, store string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.stores[store]
	if !ok {
		p = &memPartition{}
		s.stores[store] = p
	}
	p.seq++
	rec.Seq = p.seq
	rec.Store = store
	p.records = append(p.records, *rec)
	return nil
}

func (s *MemoryRecordStore) Query(_ context.Context, store string, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.stores[store]
	if !ok {
		return nil, nil
	}
	var out []Record
	for i := range p.records {
		if f.matches(&p.records[i]) {
			out = append(out, p.records[i])
		}
	}
	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryRecordStore) Latest(_ context.Context, store, scope, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.stores[store]
	if !ok {
		return nil, nil
	}
	var best *Record
	for i := range p.records {
		r := &p.records[i]
		if r.Scope == scope && r.Key == key && (best == nil || r.Seq > best.Seq) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	rec := *best
	return &rec, nil
}

func (s *MemoryRecordStore) Sweep(_ context.Context, store string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.stores[store]
	if !ok {
		return 0, nil
	}
	stale := superseded(p.records)
	kept := p.records[:0]
	var deleted int64
	for i, r := range p.records {
		if stale[i] || r.Expired(now) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	p.records = kept
	return deleted, nil
}

func (s *MemoryRecordStore) Stats(_ context.Context, store string) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := StoreStats{Store: store, Scopes: make(map[string]int64)}
	p, ok := s.stores[store]
	if !ok {
		return st, nil
	}
	for _, r := range p.records {
		st.Records++
		st.Scopes[r.Scope]++
		if st.Oldest.IsZero() || r.CreatedAt.Before(st.Oldest) {
			st.Oldest = r.CreatedAt
		}
		if r.CreatedAt.After(st.Newest) {
			st.Newest = r.CreatedAt
		}
	}
	return st, nil
}

func (s *MemoryRecordStore) Stores(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.stores))
	for id := range s.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryRecordStore) Optimize(context.Context, string) error { return nil }

func (s *MemoryRecordStore) Close() error { return nil }
