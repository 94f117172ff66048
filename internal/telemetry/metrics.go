package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects memory layer counters
type Metrics struct {
	mu sync.RWMutex

	// Counters
	RecordsStored   int64
	Queries         int64
	CacheHits       int64
	CacheMisses     int64
	Handoffs        int64
	Broadcasts      int64
	Denials         int64
	StorageFailures int64
	RecordsSwept    int64

	// Histograms (simplified)
	queryLatencies []time.Duration
	sweepDurations []time.Duration

	// Exporter (optional)
	exporter MetricsExporter
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		queryLatencies: make([]time.Duration, 0, 1000),
		sweepDurations: make([]time.Duration, 0, 100),
	}
}

// IncStored increments the stored records counter
func (m *Metrics) IncStored() {
	atomic.AddInt64(&m.RecordsStored, 1)
}

// IncQueries increments the query counter
func (m *Metrics) IncQueries() {
	atomic.AddInt64(&m.Queries, 1)
}

// IncCacheHit increments the cache hit counter
func (m *Metrics) IncCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncCacheMiss increments the cache miss counter
func (m *Metrics) IncCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncHandoffs increments the handoff counter
func (m *Metrics) IncHandoffs() {
	atomic.AddInt64(&m.Handoffs, 1)
}

// IncBroadcasts increments the broadcast counter
func (m *Metrics) IncBroadcasts() {
	atomic.AddInt64(&m.Broadcasts, 1)
}

// IncDenials increments the permission denial counter
func (m *Metrics) IncDenials() {
	atomic.AddInt64(&m.Denials, 1)
}

// IncStorageFailures increments the storage failure counter
func (m *Metrics) IncStorageFailures() {
	atomic.AddInt64(&m.StorageFailures, 1)
}

// AddSwept adds n evicted records
func (m *Metrics) AddSwept(n int64) {
	atomic.AddInt64(&m.RecordsSwept, n)
}

// RecordQueryLatency records a query latency
func (m *Metrics) RecordQueryLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queryLatencies) >= 1000 {
		m.queryLatencies = m.queryLatencies[1:]
	}
	m.queryLatencies = append(m.queryLatencies, d)
}

// RecordSweepDuration records how long a sweep took
func (m *Metrics) RecordSweepDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sweepDurations) >= 100 {
		m.sweepDurations = m.sweepDurations[1:]
	}
	m.sweepDurations = append(m.sweepDurations, d)
}

// GetSummary returns a summary of collected metrics
func (m *Metrics) GetSummary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := map[string]interface{}{
		"records_stored":   atomic.LoadInt64(&m.RecordsStored),
		"queries":          atomic.LoadInt64(&m.Queries),
		"cache_hits":       atomic.LoadInt64(&m.CacheHits),
		"cache_misses":     atomic.LoadInt64(&m.CacheMisses),
		"handoffs":         atomic.LoadInt64(&m.Handoffs),
		"broadcasts":       atomic.LoadInt64(&m.Broadcasts),
		"denials":          atomic.LoadInt64(&m.Denials),
		"storage_failures": atomic.LoadInt64(&m.StorageFailures),
		"records_swept":    atomic.LoadInt64(&m.RecordsSwept),
	}

	if len(m.queryLatencies) > 0 {
		var total time.Duration
		for _, d := range m.queryLatencies {
			total += d
		}
		summary["avg_query_latency_us"] = total.Microseconds() / int64(len(m.queryLatencies))
	}

	if len(m.sweepDurations) > 0 {
		var total time.Duration
		for _, d := range m.sweepDurations {
			total += d
		}
		summary["avg_sweep_duration_ms"] = total.Milliseconds() / int64(len(m.sweepDurations))
	}

	return summary
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range []*int64{
		&m.RecordsStored, &m.Queries, &m.CacheHits, &m.CacheMisses, &m.Handoffs,
		&m.Broadcasts, &m.Denials, &m.StorageFailures, &m.RecordsSwept,
	} {
		atomic.StoreInt64(c, 0)
	}

	m.queryLatencies = m.queryLatencies[:0]
	m.sweepDurations = m.sweepDurations[:0]
}

// SetExporter attaches a metrics exporter.
func (m *Metrics) SetExporter(e MetricsExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Close closes the attached exporter, if any.
func (m *Metrics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exporter == nil {
		return nil
	}
	err := m.exporter.Close()
	m.exporter = nil
	return err
}

// Flush exports the current metrics snapshot with the given event label.
func (m *Metrics) Flush(event string, labels map[string]string) {
	m.mu.RLock()
	exporter := m.exporter
	m.mu.RUnlock()

	if exporter == nil {
		return
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     event,
		Metrics:   m.GetSummary(),
		Labels:    labels,
	}
	// Best-effort export.
	_ = exporter.Export(snapshot)
}
