package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/event"
	"github.com/cadre-oss/scopemem/internal/telemetry"
	"github.com/google/uuid"
)

// hardLimit caps every query regardless of the requested limit.
const hardLimit = 1000

// Manager owns the physical stores and hands out per-agent handles. It is
// safe for concurrent use by any number of agents.
type Manager struct {
	cfg      *config.Config
	disabled bool

	registry *Registry
	guard    *Guard
	store    RecordStore

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus
	now     func() time.Time

	maxResults    int
	defaultWindow time.Duration
	cacheTTL      time.Duration
	sweepInterval time.Duration

	sweepMu sync.Mutex
	sweeps  map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithEventBus sets the event bus. Without it, a bus is built from the
// configured hooks.
func WithEventBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRecordStore supplies the record store instead of opening the
// configured driver.
func WithRecordStore(s RecordStore) Option {
	return func(m *Manager) { m.store = s }
}

// Open validates cfg and opens the configured store. A disabled
// configuration opens nothing and every operation becomes a no-op.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	m := &Manager{
		cfg:      cfg,
		disabled: cfg.Disabled,
		now:      time.Now,
		sweeps:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = telemetry.NewLoggerWithOptions(cfg.Logging.Level, cfg.Logging.Format)
	}
	if m.metrics == nil {
		m.metrics = telemetry.NewMetrics()
	}
	if m.disabled {
		m.logger.Info("Memory layer disabled")
		return m, nil
	}

	registry, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	m.registry = registry
	m.guard = NewGuard(registry)

	// Validate has already rejected unparseable durations.
	m.maxResults = cfg.Query.MaxResults
	m.defaultWindow, _ = cfg.Query.ParsedDefaultWindow()
	m.cacheTTL, _ = cfg.Cache.ParsedDefaultTTL()
	m.sweepInterval, _ = cfg.Sweeper.ParsedInterval()

	if m.bus == nil && cfg.Hooks.Enabled {
		hooks, err := event.BuildHooks(cfg.Hooks.Hooks, m.logger)
		if err != nil {
			return nil, memerrors.Wrap(memerrors.CodeConfiguration, "invalid hooks", err)
		}
		m.bus = event.NewBus(m.logger)
		for _, h := range hooks {
			m.bus.Register(h)
		}
	}

	if m.store == nil {
		store, err := NewRecordStore(ctx, cfg.Storage)
		if err != nil {
			return nil, memerrors.StorageUnavailable(cfg.Storage.Driver, err).
				WithSuggestion("check storage.driver, storage.path and storage.dsn")
		}
		m.store = store
	}

	m.logger.Debug("Memory layer opened",
		"driver", cfg.Storage.Driver,
		"scopes", len(registry.Scopes()),
	)
	return m, nil
}

// Enabled reports whether the layer is active.
func (m *Manager) Enabled() bool {
	return !m.disabled
}

// Registry returns the resolved scope table, or nil when disabled.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Metrics returns the metrics collector.
func (m *Manager) Metrics() *telemetry.Metrics {
	return m.metrics
}

// ForAgent returns the memory handle for agent.
func (m *Manager) ForAgent(agent string) *AgentMemory {
	return &AgentMemory{m: m, agent: agent}
}

// Close waits for in-flight hooks, then releases the store, the metrics
// exporter and any log files.
func (m *Manager) Close() error {
	errs := []error{m.bus.Close()}
	if m.store != nil {
		errs = append(errs, m.store.Close())
	}
	errs = append(errs, m.metrics.Close(), m.logger.Close())
	return errors.Join(errs...)
}

// authorize runs the guard and reports denials.
func (m *Manager) authorize(agent, scope string, op Op) (*Scope, error) {
	s, err := m.guard.Check(agent, scope, op)
	if err != nil && memerrors.AsCode(err) == memerrors.CodePermissionDenied {
		m.metrics.IncDenials()
		m.logger.Warn("Memory access denied", "agent", agent, "scope", scope, "op", string(op))
		m.emit(event.AccessDenied, agent, scope, map[string]interface{}{
			"op": string(op),
		})
	}
	return s, err
}

// storageError wraps a driver failure and reports it.
func (m *Manager) storageError(store, op string, err error) error {
	m.metrics.IncStorageFailures()
	m.logger.Warn("Memory store failure", "store", store, "op", op, "error", err)
	m.emit(event.StorageFailed, "", "", map[string]interface{}{
		"store": store,
		"op":    op,
		"error": err.Error(),
	})
	return memerrors.StorageUnavailable(store, err)
}

func (m *Manager) emit(t event.EventType, agent, scope string, data map[string]interface{}) {
	if err := m.bus.Emit(event.NewEvent(t, data).About(agent, scope)); err != nil {
		m.logger.Warn("Event hook failed", "event", string(t), "error", err)
	}
}

// writeRequest describes one record to persist.
type writeRequest struct {
	agent    string
	scope    *Scope
	store    string
	content  string
	priority string
	metadata map[string]any
	key      string
	ttl      time.Duration
}

// write validates and persists a record, returning its id.
func (m *Manager) write(ctx context.Context, req writeRequest) (*Record, error) {
	if req.content == "" {
		return nil, memerrors.Validation("content is required").WithScope(req.scope.Name)
	}
	priority := req.scope.DefaultPriority
	if req.priority != "" {
		p, err := ParsePriority(req.priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}
	md, err := NormalizeMetadata(req.metadata)
	if err != nil {
		return nil, err
	}
	ttl := req.ttl
	if ttl <= 0 {
		ttl = req.scope.Retention
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := m.now()
	rec := &Record{
		ID:        id.String(),
		Scope:     req.scope.Name,
		AgentID:   req.agent,
		Content:   req.content,
		Priority:  priority,
		Metadata:  md,
		Key:       req.key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.Append(ctx, req.store, rec); err != nil {
		return nil, m.storageError(req.store, "append", err)
	}

	m.metrics.IncStored()
	m.logger.Debug("Memory record stored",
		"id", rec.ID,
		"agent", req.agent,
		"scope", rec.Scope,
		"store", req.store,
		"priority", string(priority),
	)
	return rec, nil
}

// effectiveLimit applies the configured default and the hard cap.
func (m *Manager) effectiveLimit(limit int) int {
	if limit <= 0 {
		limit = m.maxResults
	}
	if limit <= 0 || limit > hardLimit {
		limit = hardLimit
	}
	return limit
}

func (m *Manager) String() string {
	if m.disabled {
		return "memory(disabled)"
	}
	return fmt.Sprintf("memory(%s)", m.cfg.Storage.Driver)
}
