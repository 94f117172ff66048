package event

import (
	"fmt"
	"sync"
	"time"
)

// Bus fans memory events out to hooks.
//
// Blocking hooks run in registration order on the emitting goroutine and the
// first failure is returned. Non-blocking hooks run on their own goroutines;
// their failures and panics are logged. Close waits for those goroutines, so
// a short-lived process does not exit with webhooks still in flight.
//
// A nil Bus is safe to use and drops every event.
type Bus struct {
	mu       sync.RWMutex
	hooks    []Hook
	enabled  bool
	closed   bool
	inflight sync.WaitGroup
	logger   Logger
	now      func() time.Time
}

// Logger is the slice of the telemetry logger the bus needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// ScopeFilter is implemented by hooks that only want events for some scopes.
type ScopeFilter interface {
	MatchesScope(scope string) bool
}

// NewBus creates an enabled bus. A nil logger discards hook failures.
func NewBus(logger Logger) *Bus {
	return &Bus{
		enabled: true,
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds a hook to the bus.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// SetEnabled controls whether the bus dispatches events.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Emit dispatches ev to every hook whose type and scope filters accept it.
// A zero Timestamp is stamped with the current time.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.RLock()
	if !b.enabled || b.closed {
		b.mu.RUnlock()
		return nil
	}
	hooks := make([]Hook, 0, len(b.hooks))
	for _, h := range b.hooks {
		if accepts(h, ev) {
			hooks = append(hooks, h)
		}
	}
	// Add under the read lock so Close cannot start waiting in between.
	for _, h := range hooks {
		if !h.IsBlocking() {
			b.inflight.Add(1)
		}
	}
	b.mu.RUnlock()

	var blockingErr error
	for _, h := range hooks {
		if !h.IsBlocking() {
			go b.dispatch(h, ev)
			continue
		}
		if blockingErr != nil {
			continue
		}
		if err := h.Handle(ev); err != nil {
			blockingErr = fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
		}
	}
	return blockingErr
}

// Wait blocks until every non-blocking hook started so far has returned.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.inflight.Wait()
}

// Close stops dispatch and waits for in-flight hooks.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
	return nil
}

func (b *Bus) dispatch(h Hook, ev Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.warn("Non-blocking hook panicked", h, ev, "panic", r)
		}
	}()
	if err := h.Handle(ev); err != nil {
		b.warn("Non-blocking hook failed", h, ev, "error", err)
	}
}

func (b *Bus) warn(msg string, h Hook, ev Event, keyvals ...interface{}) {
	if b.logger == nil {
		return
	}
	kv := append([]interface{}{"hook", h.Name(), "event", string(ev.Type)}, keyvals...)
	if ev.Scope != "" {
		kv = append(kv, "scope", ev.Scope)
	}
	b.logger.Warn(msg, kv...)
}

func accepts(h Hook, ev Event) bool {
	if !h.Matches(ev.Type) {
		return false
	}
	if sf, ok := h.(ScopeFilter); ok {
		return sf.MatchesScope(ev.Scope)
	}
	return true
}
