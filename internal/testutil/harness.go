package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/cadre-oss/scopemem/internal/config"
	"github.com/cadre-oss/scopemem/internal/event"
	"github.com/cadre-oss/scopemem/internal/memory"
	"github.com/cadre-oss/scopemem/internal/telemetry"
)

// TestHarness provides everything needed for scenario tests: an in-memory
// manager, a controllable clock, captured events and assertion helpers.
type TestHarness struct {
	T        *testing.T
	Config   *config.Config
	Manager  *memory.Manager
	EventBus *event.Bus
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics
	Clock    *FakeClock

	mu     sync.Mutex
	events []event.Event
}

// NewTestHarness opens a manager over cfg, or TestConfig when cfg is nil.
// The manager is closed when the test ends.
func NewTestHarness(t *testing.T, cfg *config.Config, opts ...memory.Option) *TestHarness {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}

	logger := TestLogger()
	h := &TestHarness{
		T:        t,
		Config:   cfg,
		EventBus: event.NewBus(logger),
		Logger:   logger,
		Metrics:  telemetry.NewMetrics(),
		Clock:    NewFakeClock(),
	}

	// Capture events via a hook
	h.EventBus.Register(&eventCapture{harness: h})

	base := []memory.Option{
		memory.WithLogger(logger),
		memory.WithMetrics(h.Metrics),
		memory.WithEventBus(h.EventBus),
		memory.WithClock(h.Clock.Now),
	}
	mgr, err := memory.Open(context.Background(), cfg, append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mgr.Close() })
	h.Manager = mgr
	return h
}

// Agent returns the memory handle for agent.
func (h *TestHarness) Agent(agent string) *memory.AgentMemory {
	return h.Manager.ForAgent(agent)
}

// Events returns a copy of the captured events.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was", eventType)
	}
}

// EventCount returns the number of events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	count := 0
	for _, e := range h.Events() {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// AssertVisible checks that agent sees exactly n records in scope.
func (h *TestHarness) AssertVisible(agent, scope string, n int) []memory.Record {
	h.T.Helper()
	recs, err := h.Agent(agent).GetRecent(context.Background(), memory.Query{Scope: scope})
	if err != nil {
		h.T.Fatalf("%s reading %s: %v", agent, scope, err)
	}
	if len(recs) != n {
		h.T.Errorf("expected %s to see %d records in %s, got %d", agent, n, scope, len(recs))
	}
	return recs
}

// eventCapture is a blocking hook that records events.
type eventCapture struct {
	harness *TestHarness
}

func (c *eventCapture) Name() string                 { return "test-capture" }
func (c *eventCapture) Matches(event.EventType) bool { return true } // match all
func (c *eventCapture) IsBlocking() bool             { return true } // sync for tests

func (c *eventCapture) Handle(ev event.Event) error {
	c.harness.mu.Lock()
	defer c.harness.mu.Unlock()
	c.harness.events = append(c.harness.events, ev)
	return nil
}
