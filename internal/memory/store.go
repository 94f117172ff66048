package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
)

// Filter selects records from one physical store.
type Filter struct {
	Scope    string    // exact scope; empty matches all scopes
	Since    time.Time // created_at >= Since; zero means unbounded
	Now      time.Time // expires_at >= Now; zero includes expired records
	Priority Priority  // exact priority; empty matches all
	Limit    int       // 0 means no limit
}

// StoreStats summarises one physical store.
type StoreStats struct {
	Store     string           `json:"store"`
	Records   int64            `json:"records"`
	Scopes    map[string]int64 `json:"scopes"`
	Oldest    time.Time        `json:"oldest,omitempty"`
	Newest    time.Time        `json:"newest,omitempty"`
	SizeBytes int64            `json:"size_bytes,omitempty"`
}

// RecordStore persists records in physical stores identified by store id.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Append persists rec in store and assigns rec.Seq and rec.Store.
	Append(ctx context.Context, store string, rec *Record) error

	// Query returns matching records ordered by created_at desc, then seq desc.
	Query(ctx context.Context, store string, f Filter) ([]Record, error)

	// Latest returns the record with the highest seq for (scope, key),
	// expired or not, or nil if none exists.
	Latest(ctx context.Context, store, scope, key string) (*Record, error)

	// Sweep atomically deletes records expired before now and keyed records
	// superseded by a higher seq. It returns the number deleted.
	Sweep(ctx context.Context, store string, now time.Time) (int64, error)

	// Stats summarises a store.
	Stats(ctx context.Context, store string) (StoreStats, error)

	// Stores lists every store id holding data.
	Stores(ctx context.Context) ([]string, error)

	// Optimize reclaims space where the backend supports it.
	Optimize(ctx context.Context, store string) error

	// Close releases any resources held by the store.
	Close() error
}

// NewRecordStore opens the driver selected by cfg.
func NewRecordStore(ctx context.Context, cfg config.StorageConfig) (RecordStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteRecordStore(cfg.Path)
	case "postgres":
		return NewPostgresRecordStore(ctx, cfg.DSN)
	case "redis":
		return NewRedisRecordStore(ctx, cfg.DSN)
	case "memory":
		return NewMemoryRecordStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// matches applies f to a single record.
func (f Filter) matches(rec *Record) bool {
	if f.Scope != "" && rec.Scope != f.Scope {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Now.IsZero() && rec.Expired(f.Now) {
		return false
	}
	if f.Priority != "" && rec.Priority != f.Priority {
		return false
	}
	return true
}

// superseded returns the indexes of keyed records that have a newer record
// with the same scope and key.
func superseded(recs []Record) map[int]bool {
	type slot struct{ scope, key string }
	newest := make(map[slot]int64)
	for _, r := range recs {
		if r.Key == "" {
			continue
		}
		s := slot{r.Scope, r.Key}
		if r.Seq > newest[s] {
			newest[s] = r.Seq
		}
	}
	out := make(map[int]bool)
	for i, r := range recs {
		if r.Key != "" && r.Seq < newest[slot{r.Scope, r.Key}] {
			out[i] = true
		}
	}
	return out
}
