package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cadre-oss/scopemem/internal/event"
)

// SweepReport summarises one retention pass.
type SweepReport struct {
	Stores   int              `json:"stores"`
	Deleted  int64            `json:"deleted"`
	PerStore map[string]int64 `json:"per_store,omitempty"`
	Duration time.Duration    `json:"duration"`
}

func (m *Manager) sweepLock(store string) *sync.Mutex {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	mu, ok := m.sweeps[store]
	if !ok {
		mu = &sync.Mutex{}
		m.sweeps[store] = mu
	}
	return mu
}

// SweepStore deletes expired and superseded records from one store. Only one
// sweep per store runs at a time.
func (m *Manager) SweepStore(ctx context.Context, store string) (int64, error) {
	if m.disabled {
		return 0, nil
	}
	mu := m.sweepLock(store)
	mu.Lock()
	defer mu.Unlock()

	n, err := m.store.Sweep(ctx, store, m.now())
	if err != nil {
		return 0, m.storageError(store, "sweep", err)
	}
	return n, nil
}

// SweepOnce sweeps every store. Failing stores are skipped and reported in
// the joined error; the rest are still swept.
func (m *Manager) SweepOnce(ctx context.Context) (SweepReport, error) {
	report := SweepReport{PerStore: make(map[string]int64)}
	if m.disabled {
		return report, nil
	}
	start := time.Now()

	stores, err := m.store.Stores(ctx)
	if err != nil {
		return report, m.storageError("*", "list", err)
	}

	var errs []error
	for _, id := range stores {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := m.SweepStore(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Stores++
		if n > 0 {
			report.PerStore[id] = n
			report.Deleted += n
		}
	}
	report.Duration = time.Since(start)

	m.metrics.AddSwept(report.Deleted)
	m.metrics.RecordSweepDuration(report.Duration)
	m.metrics.Flush(string(event.RetentionSwept), nil)
	m.logger.Info("Retention sweep complete",
		"stores", report.Stores,
		"deleted", report.Deleted,
		"duration", report.Duration,
	)
	m.emit(event.RetentionSwept, "", "", map[string]interface{}{
		"stores":  report.Stores,
		"deleted": report.Deleted,
	})
	return report, errors.Join(errs...)
}

// RunSweeper sweeps every configured interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) error {
	if m.disabled {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	m.logger.Info("Retention sweeper started", "interval", m.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Retention sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := m.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("Retention sweep failed", "error", err)
			}
		}
	}
}
