package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

func TestHandoff_DeliveredToRecipientOnly(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	sender := m.ForAgent("strategy_agent")

	if _, err := sender.Handoff(ctx, "trading_agent", "execute long BTC", map[string]any{"size": 0.5}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := sender.Handoff(ctx, "trading_agent", "tighten stops", nil); err != nil {
		t.Fatal(err)
	}

	recs, err := m.ForAgent("trading_agent").GetHandoffs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(recs); !equalStrings(got, []string{"tighten stops", "execute long BTC"}) {
		t.Fatalf("expected newest first, got %v", got)
	}
	md := recs[1].Metadata
	if md["from_agent"] != "strategy_agent" || md["to_agent"] != "trading_agent" {
		t.Errorf("unexpected routing metadata %v", md)
	}
	hctx, ok := md["context"].(map[string]any)
	if !ok || hctx["size"] != 0.5 {
		t.Errorf("expected context carried, got %#v", md["context"])
	}
	if recs[0].Priority != PriorityHigh {
		t.Errorf("expected handoff scope default priority, got %s", recs[0].Priority)
	}
	if recs[0].Store != "agent_trading_agent" {
		t.Errorf("expected recipient store, got %s", recs[0].Store)
	}

	own, err := sender.GetHandoffs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 0 {
		t.Errorf("expected sender inbox empty, got %v", contents(own))
	}
	if m.Metrics().Handoffs != 2 {
		t.Errorf("expected 2 handoffs counted, got %d", m.Metrics().Handoffs)
	}
}

func TestHandoff_OlderThanDefaultWindowStillReturned(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	m.ForAgent("risk_agent").Handoff(ctx, "trading_agent", "reduce size", nil)
	clock.Advance(48 * time.Hour)

	recs, err := m.ForAgent("trading_agent").GetHandoffs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("expected handoff within 7d retention, got %d", len(recs))
	}

	clock.Advance(6 * 24 * time.Hour)
	recs, err = m.ForAgent("trading_agent").GetHandoffs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected handoff expired after retention, got %d", len(recs))
	}
}

func TestHandoff_Errors(t *testing.T) {
	cfg := testConfig()
	for i := range cfg.Scopes {
		if cfg.Scopes[i].Name == "handoff" {
			cfg.Scopes[i].Access = []string{"trading_agent", "risk_agent"}
		}
	}
	m, _ := newTestManager(t, cfg)
	ctx := context.Background()
	mem := m.ForAgent("risk_agent")

	if _, err := mem.Handoff(ctx, "", "x", nil); !errors.Is(err, memerrors.ErrValidation) {
		t.Errorf("expected validation error for empty recipient, got %v", err)
	}
	if _, err := mem.Handoff(ctx, "trading_agent", "", nil); !errors.Is(err, memerrors.ErrValidation) {
		t.Errorf("expected validation error for empty message, got %v", err)
	}
	if _, err := mem.Handoff(ctx, "whale_agent", "x", nil); !errors.Is(err, memerrors.ErrPermissionDenied) {
		t.Errorf("expected permission denied for unlisted recipient, got %v", err)
	}
	if _, err := mem.Handoff(ctx, "trading_agent", "x", map[string]any{"bad": struct{}{}}); !errors.Is(err, memerrors.ErrValidation) {
		t.Errorf("expected validation error for bad context, got %v", err)
	}
}

func TestBroadcast_VisibleToEveryone(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.ForAgent("risk_agent").Broadcast(ctx, "max drawdown hit"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := m.ForAgent("whale_agent").Broadcast(ctx, "exchange outage", WithPriority(PriorityCritical)); err != nil {
		t.Fatal(err)
	}

	for _, agent := range []string{"copybot_agent", "sentiment_agent", "risk_agent"} {
		recs, err := m.ForAgent(agent).GetRecent(ctx, Query{Scope: "alerts"})
		if err != nil {
			t.Fatalf("%s: %v", agent, err)
		}
		if got := contents(recs); !equalStrings(got, []string{"exchange outage", "max drawdown hit"}) {
			t.Errorf("%s: unexpected alerts %v", agent, got)
		}
		if recs[0].Priority != PriorityCritical || recs[1].Priority != PriorityHigh {
			t.Errorf("%s: unexpected priorities %s/%s", agent, recs[0].Priority, recs[1].Priority)
		}
	}
}

func TestBroadcast_AlertsReadableDespiteACL(t *testing.T) {
	cfg := testConfig()
	for i := range cfg.Scopes {
		if cfg.Scopes[i].Name == "alerts" {
			cfg.Scopes[i].Access = []string{"risk_agent"}
		}
	}
	m, _ := newTestManager(t, cfg)
	ctx := context.Background()

	if _, err := m.ForAgent("copybot_agent").Broadcast(ctx, "copy target liquidated"); err != nil {
		t.Fatalf("expected any agent to broadcast, got %v", err)
	}
	recs, err := m.ForAgent("whale_agent").GetRecent(ctx, Query{Scope: "alerts"})
	if err != nil {
		t.Fatalf("expected alerts readable by all, got %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 alert, got %d", len(recs))
	}
	if _, err := m.ForAgent("whale_agent").Store(ctx, "alerts", "direct write"); !errors.Is(err, memerrors.ErrPermissionDenied) {
		t.Errorf("expected direct write to honour the access list, got %v", err)
	}
}
