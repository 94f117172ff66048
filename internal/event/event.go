package event

import "time"

// EventType identifies the kind of memory event.
type EventType string

const (
	// Writes
	RecordStored EventType = "memory.stored"
	CacheStored  EventType = "memory.cache.stored"

	// Coordination
	HandoffSent   EventType = "memory.handoff"
	BroadcastSent EventType = "memory.broadcast"

	// Maintenance
	RetentionSwept EventType = "memory.swept"

	// Failures
	AccessDenied  EventType = "memory.denied"
	StorageFailed EventType = "memory.storage.failed"
)

// Event carries data about a memory occurrence. Agent and Scope are empty
// for events that are not tied to a single agent or scope, such as sweeps.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Agent     string                 `json:"agent,omitempty"`
	Scope     string                 `json:"scope,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// About returns a copy of the event attributed to an agent and scope.
func (e Event) About(agent, scope string) Event {
	e.Agent = agent
	e.Scope = scope
	return e
}

// env renders the event as SCOPEMEM_EVENT_* variables for shell hooks.
func (e Event) env(payload []byte) []string {
	return []string{
		"SCOPEMEM_EVENT_TYPE=" + string(e.Type),
		"SCOPEMEM_EVENT_AGENT=" + e.Agent,
		"SCOPEMEM_EVENT_SCOPE=" + e.Scope,
		"SCOPEMEM_EVENT_JSON=" + string(payload),
	}
}
