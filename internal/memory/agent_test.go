package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/event"
	"github.com/cadre-oss/scopemem/internal/telemetry"
)

func TestStore_SharedPoolVisibleToAllMembers(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	for _, agent := range []string{"risk_agent", "trading_agent", "strategy_agent"} {
		if _, err := m.ForAgent(agent).Store(ctx, "risk", "exposure from "+agent); err != nil {
			t.Fatalf("%s store: %v", agent, err)
		}
		clock.Advance(time.Second)
	}

	want := []string{"exposure from strategy_agent", "exposure from trading_agent", "exposure from risk_agent"}
	for _, agent := range []string{"risk_agent", "trading_agent", "strategy_agent"} {
		recs, err := m.ForAgent(agent).GetRecent(ctx, Query{Scope: "risk"})
		if err != nil {
			t.Fatalf("%s get: %v", agent, err)
		}
		if got := contents(recs); !equalStrings(got, want) {
			t.Errorf("%s: expected %v, got %v", agent, want, got)
		}
	}
}

func TestStore_ReturnsUniqueIDs(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := mem.Store(ctx, "whale", fmt.Sprintf("transfer %d", i))
		if err != nil {
			t.Fatal(err)
		}
		if id == "" || seen[id] {
			t.Fatalf("expected a fresh id, got %q", id)
		}
		seen[id] = true
	}
}

func TestStore_SameInstantOrderedBySeq(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	for _, c := range []string{"first", "second", "third"} {
		if _, err := mem.Store(ctx, "whale", c); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := mem.GetRecent(ctx, Query{Scope: "whale"})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(recs); !equalStrings(got, []string{"third", "second", "first"}) {
		t.Errorf("expected insertion order reversed, got %v", got)
	}
}

func TestStore_PrivateScopeIsolation(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.ForAgent("agent_a").Store(ctx, "funding", "funding flip on ETH"); err != nil {
		t.Fatal(err)
	}

	recs, err := m.ForAgent("agent_b").GetRecent(ctx, Query{Scope: "funding"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected agent_b to see nothing in agent_a's partition, got %v", contents(recs))
	}

	recs, err = m.ForAgent("agent_a").GetRecent(ctx, Query{Scope: "funding"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Store != "agent_agent_a" {
		t.Errorf("expected one record in agent_agent_a, got %+v", recs)
	}
}

func TestStore_Errors(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		agent   string
		scope   string
		content string
		opts    []StoreOption
		wantErr error
	}{
		{"unknown scope", "risk_agent", "weather", "x", nil, memerrors.ErrConfiguration},
		{"empty content", "risk_agent", "risk", "", nil, memerrors.ErrValidation},
		{"bad priority", "risk_agent", "risk", "x", []StoreOption{WithPriority("urgent")}, memerrors.ErrValidation},
		{"bad metadata", "risk_agent", "risk", "x", []StoreOption{WithMetadata(map[string]any{"ch": make(chan int)})}, memerrors.ErrValidation},
		{"not a member", "whale_agent", "risk", "x", nil, memerrors.ErrPermissionDenied},
		{"private scope of another", "whale_agent", "sentiment", "x", nil, memerrors.ErrPermissionDenied},
		{"empty agent", "", "risk", "x", nil, memerrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := m.ForAgent(tt.agent).Store(ctx, tt.scope, tt.content, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if id != "" {
				t.Errorf("expected no id on failure, got %q", id)
			}
		})
	}

	if got := m.Metrics().Denials; got != 2 {
		t.Errorf("expected 2 denials counted, got %d", got)
	}
}

func TestStore_PriorityAndMetadata(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("risk_agent")

	if _, err := mem.Store(ctx, "risk", "default priority"); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Store(ctx, "risk", "margin call", WithPriority(PriorityCritical),
		WithMetadata(map[string]any{"symbol": "BTC", "leverage": 20})); err != nil {
		t.Fatal(err)
	}

	recs, err := mem.GetRecent(ctx, Query{Scope: "risk"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[1].Priority != PriorityHigh {
		t.Errorf("expected scope default priority high, got %s", recs[1].Priority)
	}
	if recs[0].Priority != PriorityCritical {
		t.Errorf("expected critical, got %s", recs[0].Priority)
	}
	if v, ok := recs[0].Metadata["leverage"].(int64); !ok || v != 20 {
		t.Errorf("expected leverage int64(20), got %#v", recs[0].Metadata["leverage"])
	}

	critical, err := mem.GetRecent(ctx, Query{Scope: "risk", Priority: PriorityCritical})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(critical); !equalStrings(got, []string{"margin call"}) {
		t.Errorf("expected only the critical record, got %v", got)
	}
}

func TestGetRecent_ExpiryWinsOverWindow(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	if _, err := mem.Store(ctx, "cache", "short lived"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(16 * time.Minute)

	recs, err := mem.GetRecent(ctx, Query{Scope: "cache", Window: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected expired record hidden, got %v", contents(recs))
	}
}

func TestGetRecent_Window(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	if _, err := mem.Store(ctx, "market", "old"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := mem.Store(ctx, "market", "new"); err != nil {
		t.Fatal(err)
	}

	recs, err := mem.GetRecent(ctx, Query{Scope: "market"})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(recs); !equalStrings(got, []string{"new"}) {
		t.Errorf("expected default 1h window to keep only new, got %v", got)
	}

	recs, err = mem.GetRecent(ctx, Query{Scope: "market", Window: 3 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(recs); !equalStrings(got, []string{"new", "old"}) {
		t.Errorf("expected both records in 3h window, got %v", got)
	}

	if _, err := mem.GetRecent(ctx, Query{Scope: "market", Window: -time.Hour}); !errors.Is(err, memerrors.ErrValidation) {
		t.Errorf("expected validation error for negative window, got %v", err)
	}
}

func TestGetRecent_AllReadableScopes(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	whale := m.ForAgent("whale_agent")
	if _, err := whale.Store(ctx, "whale", "whale moved 5k BTC"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := m.ForAgent("risk_agent").Store(ctx, "risk", "risk only"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := m.ForAgent("risk_agent").Broadcast(ctx, "halt trading"); err != nil {
		t.Fatal(err)
	}

	recs, err := whale.GetRecent(ctx, Query{})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(recs); !equalStrings(got, []string{"halt trading", "whale moved 5k BTC"}) {
		t.Errorf("expected alert then own record, got %v", got)
	}
}

func TestGetRecent_Limits(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	for i := 0; i < 30; i++ {
		if _, err := mem.Store(ctx, "market", fmt.Sprintf("tick %d", i)); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Millisecond)
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 20},
		{-1, 20},
		{5, 5},
		{5000, 30},
	}
	for _, tt := range tests {
		recs, err := mem.GetRecent(ctx, Query{Scope: "market", Limit: tt.limit})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != tt.want {
			t.Errorf("limit %d: expected %d records, got %d", tt.limit, tt.want, len(recs))
		}
	}
	if got := m.effectiveLimit(5000); got != hardLimit {
		t.Errorf("expected limit capped at %d, got %d", hardLimit, got)
	}
}

func TestGetRecent_PriorityIsNormalized(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = t.TempDir()
	m, _ := newTestManager(t, cfg)
	ctx := context.Background()
	mem := m.ForAgent("risk_agent")

	if _, err := mem.Store(ctx, "risk", "margin call", WithPriority("HIGH")); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Store(ctx, "risk", "routine check", WithPriority(PriorityLow)); err != nil {
		t.Fatal(err)
	}

	for _, p := range []Priority{"HIGH", " High ", "high"} {
		recs, err := mem.GetRecent(ctx, Query{Scope: "risk", Priority: p})
		if err != nil {
			t.Fatalf("priority %q: %v", p, err)
		}
		if got := contents(recs); !equalStrings(got, []string{"margin call"}) {
			t.Errorf("priority %q: expected [margin call], got %v", p, got)
		}
	}

	if _, err := mem.GetRecent(ctx, Query{Scope: "risk", Priority: "urgent"}); !errors.Is(err, memerrors.ErrValidation) {
		t.Errorf("expected validation error for unknown priority, got %v", err)
	}
}

func TestGetRecent_Denied(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.ForAgent("whale_agent").GetRecent(context.Background(), Query{Scope: "trading"})
	if !errors.Is(err, memerrors.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}
}

func TestDisabled_AllOperationsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Disabled = true
	m, _ := newTestManager(t, cfg)
	ctx := context.Background()
	mem := m.ForAgent("risk_agent")

	if id, err := mem.Store(ctx, "no-such-scope", ""); id != "" || err != nil {
		t.Errorf("store: expected (\"\", nil), got (%q, %v)", id, err)
	}
	if recs, err := mem.GetRecent(ctx, Query{Scope: "risk"}); recs != nil || err != nil {
		t.Errorf("get: expected (nil, nil), got (%v, %v)", recs, err)
	}
	if id, err := mem.CacheAPIResponse(ctx, "p", "e", map[string]int{"a": 1}, 0); id != "" || err != nil {
		t.Errorf("cache: expected (\"\", nil), got (%q, %v)", id, err)
	}
	if data, ok, err := mem.GetCachedResponse(ctx, "p", "e"); data != nil || ok || err != nil {
		t.Errorf("cached: expected miss, got (%s, %v, %v)", data, ok, err)
	}
	if id, err := mem.Handoff(ctx, "trading_agent", "x", nil); id != "" || err != nil {
		t.Errorf("handoff: expected (\"\", nil), got (%q, %v)", id, err)
	}
	if recs, err := mem.GetHandoffs(ctx); recs != nil || err != nil {
		t.Errorf("handoffs: expected (nil, nil), got (%v, %v)", recs, err)
	}
	if id, err := mem.Broadcast(ctx, "x"); id != "" || err != nil {
		t.Errorf("broadcast: expected (\"\", nil), got (%q, %v)", id, err)
	}
	st, err := mem.Stats(ctx)
	if err != nil || st.Enabled {
		t.Errorf("stats: expected disabled, got %+v (%v)", st, err)
	}
	if m.Enabled() {
		t.Error("expected manager to report disabled")
	}
}

// failingStore fails every operation.
type failingStore struct{ err error }

func (f failingStore) Append(context.Context, string, *Record) error { return f.err }
func (f failingStore) Query(context.Context, string, Filter) ([]Record, error) {
	return nil, f.err
}
func (f failingStore) Latest(context.Context, string, string, string) (*Record, error) {
	return nil, f.err
}
func (f failingStore) Sweep(context.Context, string, time.Time) (int64, error) { return 0, f.err }
func (f failingStore) Stats(context.Context, string) (StoreStats, error) {
	return StoreStats{}, f.err
}
func (f failingStore) Stores(context.Context) ([]string, error) { return nil, f.err }
func (f failingStore) Optimize(context.Context, string) error { return f.err }
func (f failingStore) Close() error { return nil }

func TestStorageFailure(t *testing.T) {
	m, _ := newTestManager(t, nil, WithRecordStore(failingStore{err: errors.New("disk full")}))
	ctx := context.Background()
	mem := m.ForAgent("risk_agent")

	_, err := mem.Store(ctx, "risk", "x")
	if !errors.Is(err, memerrors.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if !memerrors.IsTransient(err) {
		t.Error("expected storage failure to be transient")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected cause in error, got %v", err)
	}

	if _, err := mem.GetRecent(ctx, Query{Scope: "risk"}); !errors.Is(err, memerrors.ErrStorageUnavailable) {
		t.Errorf("expected storage unavailable on query, got %v", err)
	}
	if _, _, err := mem.GetCachedResponse(ctx, "p", "e"); !errors.Is(err, memerrors.ErrStorageUnavailable) {
		t.Errorf("expected storage unavailable on cache lookup, got %v", err)
	}
	if got := m.Metrics().StorageFailures; got != 3 {
		t.Errorf("expected 3 storage failures counted, got %d", got)
	}
}

func TestOpen_UnwritableSQLitePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(blocker, "memory")

	_, err := Open(context.Background(), cfg, WithLogger(telemetry.NewNopLogger()))
	if !errors.Is(err, memerrors.ErrStorageUnavailable) {
		t.Errorf("expected storage unavailable, got %v", err)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Scopes = append(cfg.Scopes, config.ScopeConfig{Name: "bad", Retention: "", DefaultPriority: "low", Access: []string{"all"}})

	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, memerrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

// recordingHook captures events synchronously.
type recordingHook struct {
	mu     sync.Mutex
	events []event.Event
}

func (h *recordingHook) Name() string                 { return "recorder" }
func (h *recordingHook) Matches(event.EventType) bool { return true }
func (h *recordingHook) IsBlocking() bool             { return true }
func (h *recordingHook) Handle(ev event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func TestEvents(t *testing.T) {
	hook := &recordingHook{}
	bus := event.NewBus(nil)
	bus.Register(hook)
	m, _ := newTestManager(t, nil, WithEventBus(bus))
	ctx := context.Background()

	mem := m.ForAgent("risk_agent")
	mem.Store(ctx, "risk", "x")
	mem.Broadcast(ctx, "y")
	mem.Handoff(ctx, "trading_agent", "z", nil)
	mem.CacheAPIResponse(ctx, "p", "e", 1, 0)
	m.ForAgent("whale_agent").Store(ctx, "risk", "denied")

	want := []struct {
		typ          event.EventType
		agent, scope string
	}{
		{event.RecordStored, "risk_agent", "risk"},
		{event.BroadcastSent, "risk_agent", "alerts"},
		{event.HandoffSent, "risk_agent", "handoff"},
		{event.CacheStored, "risk_agent", "cache"},
		{event.AccessDenied, "whale_agent", "risk"},
	}
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), hook.events)
	}
	for i, w := range want {
		got := hook.events[i]
		if got.Type != w.typ || got.Agent != w.agent || got.Scope != w.scope {
			t.Errorf("event %d: expected %s %s/%s, got %s %s/%s", i, w.typ, w.agent, w.scope, got.Type, got.Agent, got.Scope)
		}
	}
}

func TestAgentStats(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	mem := m.ForAgent("whale_agent")

	mem.Store(ctx, "whale", "a")
	mem.Store(ctx, "whale", "b")
	mem.Store(ctx, "market", "c")

	st, err := mem.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Enabled || st.Agent != "whale_agent" {
		t.Errorf("unexpected header %+v", st)
	}
	if st.Records["whale"] != 2 || st.Records["market"] != 1 {
		t.Errorf("unexpected counts %v", st.Records)
	}
	for _, s := range st.Readable {
		if s == "risk" {
			t.Error("expected risk to be unreadable for whale_agent")
		}
	}
}
