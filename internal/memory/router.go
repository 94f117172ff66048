package memory

import (
	"context"
	"strings"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/event"
)

// Handoff leaves message in the recipient's handoff scope. The recipient
// must be permitted on that scope.
func (a *AgentMemory) Handoff(ctx context.Context, to, message string, hctx map[string]any) (string, error) {
	if a.m.disabled {
		return "", nil
	}
	if err := a.validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(to) == "" {
		return "", memerrors.Validation("recipient agent id is required")
	}
	s, err := a.m.authorize(to, a.m.registry.handoff, OpHandoff)
	if err != nil {
		return "", err
	}

	md := map[string]any{
		"from_agent": a.agent,
		"to_agent":   to,
	}
	if hctx != nil {
		md["context"] = hctx
	}
	rec, err := a.m.write(ctx, writeRequest{
		agent:    a.agent,
		scope:    s,
		store:    AgentStoreID(to),
		content:  message,
		metadata: md,
	})
	if err != nil {
		return "", err
	}

	a.m.metrics.IncHandoffs()
	a.m.logger.Info("Handoff sent", "from", a.agent, "to", to, "id", rec.ID)
	a.m.emit(event.HandoffSent, a.agent, rec.Scope, map[string]interface{}{
		"id": rec.ID,
		"to": to,
	})
	return rec.ID, nil
}

// GetHandoffs returns every non-expired handoff addressed to the agent, newest
// first. Read state is left to the caller.
func (a *AgentMemory) GetHandoffs(ctx context.Context) ([]Record, error) {
	if a.m.disabled {
		return nil, nil
	}
	s, err := a.m.authorize(a.agent, a.m.registry.handoff, OpRead)
	if err != nil {
		return nil, err
	}
	store := AgentStoreID(a.agent)
	recs, err := a.m.store.Query(ctx, store, Filter{
		Scope: s.Name,
		Now:   a.m.now(),
		Limit: hardLimit,
	})
	if err != nil {
		return nil, a.m.storageError(store, "query", err)
	}
	return recs, nil
}

// Broadcast publishes content to the alerts scope, readable by every agent.
// Priority defaults to the alerts scope's default.
func (a *AgentMemory) Broadcast(ctx context.Context, content string, opts ...StoreOption) (string, error) {
	if a.m.disabled {
		return "", nil
	}
	s, err := a.m.authorize(a.agent, a.m.registry.alerts, OpBroadcast)
	if err != nil {
		return "", err
	}
	o := applyStoreOptions(opts)
	rec, err := a.m.write(ctx, writeRequest{
		agent:    a.agent,
		scope:    s,
		store:    s.StoreFor(a.agent),
		content:  content,
		priority: o.priority,
		metadata: o.metadata,
	})
	if err != nil {
		return "", err
	}

	a.m.metrics.IncBroadcasts()
	a.m.logger.Info("Broadcast sent", "from", a.agent, "priority", string(rec.Priority), "id", rec.ID)
	a.m.emit(event.BroadcastSent, a.agent, rec.Scope, map[string]interface{}{
		"id":       rec.ID,
		"priority": string(rec.Priority),
	})
	return rec.ID, nil
}
