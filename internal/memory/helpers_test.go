package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	"github.com/cadre-oss/scopemem/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "memory"
	return cfg
}

// newTestManager opens a manager over an in-memory store with a fake clock.
func newTestManager(t *testing.T, cfg *config.Config, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	clock := newFakeClock()
	opts = append([]Option{
		WithClock(clock.Now),
		WithLogger(telemetry.NewNopLogger()),
	}, opts...)
	m, err := Open(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, clock
}

func contents(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
