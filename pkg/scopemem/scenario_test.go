package scopemem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cadre-oss/scopemem/internal/event"
	"github.com/cadre-oss/scopemem/internal/testutil"
	"github.com/cadre-oss/scopemem/pkg/scopemem"
)

func TestScenario_TradingLoop(t *testing.T) {
	h := testutil.NewTestHarness(t, nil)
	ctx := context.Background()

	// One loop: whale watcher caches and reports, strategy proposes, risk
	// vetoes and alerts.
	whale := h.Agent("whale_agent")
	if _, err := whale.CacheAPIResponse(ctx, "etherscan", "/whales", []string{"0xabc", "0xdef"}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := whale.Store(ctx, "market", "2 wallets moved 10k ETH to exchanges"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Agent("strategy_agent").Store(ctx, "strategy", "short ETH 2x"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Agent("risk_agent").Handoff(ctx, "trading_agent", "cap ETH short at 1x", map[string]any{"max_leverage": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Agent("risk_agent").Broadcast(ctx, "volatility spike", scopemem.WithPriority(scopemem.PriorityCritical)); err != nil {
		t.Fatal(err)
	}

	h.AssertVisible("trading_agent", "market", 1)
	h.AssertVisible("trading_agent", "strategy", 1)
	h.AssertVisible("sentiment_agent", "alerts", 1)
	if _, err := h.Agent("whale_agent").GetRecent(ctx, scopemem.Query{Scope: "strategy"}); !errors.Is(err, scopemem.ErrPermissionDenied) {
		t.Errorf("expected whale_agent denied on strategy, got %v", err)
	}

	inbox, err := h.Agent("trading_agent").GetHandoffs(ctx)
	if err != nil || len(inbox) != 1 {
		t.Fatalf("expected 1 handoff, got %d (%v)", len(inbox), err)
	}

	// Within the 15m cache window every agent shares the response.
	h.Clock.Advance(10 * time.Minute)
	var wallets []string
	if ok, err := h.Agent("trading_agent").LoadCachedResponse(ctx, "etherscan", "/whales", &wallets); err != nil || !ok {
		t.Fatalf("expected cache hit at 10m, ok=%v err=%v", ok, err)
	}
	if len(wallets) != 2 {
		t.Errorf("expected 2 wallets, got %v", wallets)
	}

	h.Clock.Advance(6 * time.Minute)
	if _, ok, err := h.Agent("trading_agent").GetCachedResponse(ctx, "etherscan", "/whales"); err != nil || ok {
		t.Errorf("expected cache miss at 16m, ok=%v err=%v", ok, err)
	}

	report, err := h.Manager.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Deleted != 1 || report.PerStore["pool_cache"] != 1 {
		t.Errorf("expected the expired cache entry swept, got %+v", report)
	}

	h.AssertEventEmitted(event.RecordStored)
	h.AssertEventEmitted(event.CacheStored)
	h.AssertEventEmitted(event.HandoffSent)
	h.AssertEventEmitted(event.BroadcastSent)
	h.AssertEventEmitted(event.AccessDenied)
	h.AssertEventEmitted(event.RetentionSwept)
	h.AssertNoEvent(event.StorageFailed)
}

func TestScenario_StorageOutageIsTransient(t *testing.T) {
	store := testutil.NewFlakyStore()
	h := testutil.NewTestHarness(t, nil, scopemem.WithRecordStore(store))
	ctx := context.Background()
	mem := h.Agent("risk_agent")

	store.SetFailing(true)
	_, err := mem.Store(ctx, "risk", "exposure 30%")
	if !errors.Is(err, scopemem.ErrStorageUnavailable) || !scopemem.IsTransient(err) {
		t.Fatalf("expected transient storage error, got %v", err)
	}
	if _, err := mem.GetRecent(ctx, scopemem.Query{Scope: "risk"}); !errors.Is(err, scopemem.ErrStorageUnavailable) {
		t.Errorf("expected storage error on read, got %v", err)
	}
	h.AssertEventEmitted(event.StorageFailed)

	store.SetFailing(false)
	if _, err := mem.Store(ctx, "risk", "exposure 30%"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	h.AssertVisible("trading_agent", "risk", 1)
	if store.FailedCalls() != 2 {
		t.Errorf("expected 2 rejected calls, got %d", store.FailedCalls())
	}
}
