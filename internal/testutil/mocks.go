package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	"github.com/cadre-oss/scopemem/internal/memory"
	"github.com/cadre-oss/scopemem/internal/telemetry"
)

// FakeClock is a manually advanced clock for WithClock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ErrInjected is returned by FlakyStore while it is failing.
var ErrInjected = errors.New("injected store failure")

// FlakyStore wraps a RecordStore and fails every call while Failing is set.
type FlakyStore struct {
	memory.RecordStore

	mu      sync.Mutex
	failing bool
	calls   int
}

// NewFlakyStore wraps an in-memory record store.
func NewFlakyStore() *FlakyStore {
	return &FlakyStore{RecordStore: memory.NewMemoryRecordStore()}
}

// SetFailing toggles failure injection.
func (s *FlakyStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// FailedCalls returns how many calls were rejected.
func (s *FlakyStore) FailedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *FlakyStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		s.calls++
		return ErrInjected
	}
	return nil
}

func (s *FlakyStore) Append(ctx context.Context, store string, rec *memory.Record) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.RecordStore.Append(ctx, store, rec)
}

func (s *FlakyStore) Query(ctx context.Context, store string, f memory.Filter) ([]memory.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.RecordStore.Query(ctx, store, f)
}

func (s *FlakyStore) Latest(ctx context.Context, store, scope, key string) (*memory.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.RecordStore.Latest(ctx, store, scope, key)
}

func (s *FlakyStore) Sweep(ctx context.Context, store string, now time.Time) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.RecordStore.Sweep(ctx, store, now)
}

func (s *FlakyStore) Stores(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.RecordStore.Stores(ctx)
}

// TestLogger returns a logger suitable for tests (no output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewNopLogger()
}

// TestConfig returns the stock scope table over the in-memory driver.
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage = config.StorageConfig{Driver: "memory"}
	cfg.Logging = config.LoggingConfig{Level: "debug", Format: "text"}
	return cfg
}
