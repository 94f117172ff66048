package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// Query selects recent records visible to an agent.
type Query struct {
	Scope    string        // empty means every scope the agent may read
	Window   time.Duration // 0 means the configured default window
	Priority Priority      // exact match; empty matches all
	Limit    int           // <= 0 means the configured max results
}

// GetRecent returns non-expired records created within the window, newest
// first. Expiry always wins over the window.
func (a *AgentMemory) GetRecent(ctx context.Context, q Query) ([]Record, error) {
	if a.m.disabled {
		return nil, nil
	}
	if q.Window < 0 {
		return nil, memerrors.Validation("window must not be negative")
	}
	if q.Priority != "" {
		p, err := ParsePriority(string(q.Priority))
		if err != nil {
			return nil, err
		}
		q.Priority = p
	}

	var scopes []*Scope
	if q.Scope != "" {
		s, err := a.m.authorize(a.agent, q.Scope, OpRead)
		if err != nil {
			return nil, err
		}
		scopes = []*Scope{s}
	} else {
		if err := a.validate(); err != nil {
			return nil, err
		}
		scopes = a.m.guard.Readable(a.agent)
	}

	window := q.Window
	if window == 0 {
		window = a.m.defaultWindow
	}
	limit := a.m.effectiveLimit(q.Limit)
	now := a.m.now()
	start := time.Now()

	var out []Record
	for _, s := range scopes {
		store := s.StoreFor(a.agent)
		recs, err := a.m.store.Query(ctx, store, Filter{
			Scope:    s.Name,
			Since:    now.Add(-window),
			Now:      now,
			Priority: q.Priority,
			Limit:    limit,
		})
		if err != nil {
			return nil, a.m.storageError(store, "query", err)
		}
		out = append(out, recs...)
	}
	sortRecords(out)
	if len(out) > limit {
		out = out[:limit]
	}

	a.m.metrics.IncQueries()
	a.m.metrics.RecordQueryLatency(time.Since(start))
	return out, nil
}

// sortRecords orders by created_at desc, then seq desc, then id desc.
func sortRecords(recs []Record) {
	slices.SortStableFunc(recs, func(x, y Record) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Seq, x.Seq); c != 0 {
			return c
		}
		return cmp.Compare(y.ID, x.ID)
	})
}
