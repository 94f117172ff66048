// Package scopemem provides the public API of the scoped agent memory layer.
//
// Example usage:
//
//	import "github.com/cadre-oss/scopemem/pkg/scopemem"
//
//	mgr, err := scopemem.OpenDir(ctx, ".")
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	mem := mgr.ForAgent("risk_agent")
//	id, err := mem.Store(ctx, "risk", "BTC exposure above limit",
//		scopemem.WithPriority(scopemem.PriorityCritical))
//
//	recent, err := mem.GetRecent(ctx, scopemem.Query{Scope: "risk"})
package scopemem

import (
	"context"
	"fmt"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/memory"
	"github.com/cadre-oss/scopemem/internal/telemetry"
)

type (
	// Manager owns the physical stores and hands out agent handles.
	Manager = memory.Manager
	// AgentMemory is one agent's view of the memory layer.
	AgentMemory = memory.AgentMemory
	// Record is one immutable memory entry.
	Record = memory.Record
	// Query selects recent records.
	Query = memory.Query
	// Priority ranks a record.
	Priority = memory.Priority
	// Metadata is a JSON-compatible attribute map.
	Metadata = memory.Metadata
	// StoreOption customises a write.
	StoreOption = memory.StoreOption
	// Option configures a Manager.
	Option = memory.Option
	// AgentStats describes an agent's scopes.
	AgentStats = memory.AgentStats
	// SweepReport summarises a retention pass.
	SweepReport = memory.SweepReport
	// Config is the memory layer configuration.
	Config = config.Config
	// ScopeConfig defines one scope.
	ScopeConfig = config.ScopeConfig
	// Error is the structured error returned by every operation.
	Error = memerrors.MemError
)

const (
	PriorityCritical = memory.PriorityCritical
	PriorityHigh     = memory.PriorityHigh
	PriorityMedium   = memory.PriorityMedium
	PriorityLow      = memory.PriorityLow
)

// Error sentinels for errors.Is.
var (
	ErrConfiguration      = memerrors.ErrConfiguration
	ErrValidation         = memerrors.ErrValidation
	ErrPermissionDenied   = memerrors.ErrPermissionDenied
	ErrStorageUnavailable = memerrors.ErrStorageUnavailable
)

// Store and manager options.
var (
	WithPriority    = memory.WithPriority
	WithMetadata    = memory.WithMetadata
	WithClock       = memory.WithClock
	WithLogger      = memory.WithLogger
	WithEventBus    = memory.WithEventBus
	WithRecordStore = memory.WithRecordStore
)

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return memerrors.IsTransient(err)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfig reads scopemem.yaml from dir, falling back to defaults.
func LoadConfig(dir string) (*Config, error) {
	return config.Load(dir)
}

// Open opens the memory layer described by cfg, logging and exporting
// metrics as cfg says. Options given by the caller take precedence.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := telemetry.NewLoggerWithOptions(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}
	metrics := telemetry.NewMetrics()
	if cfg.Metrics.Path != "" {
		exporter, err := telemetry.NewJSONFileExporter(cfg.Metrics.Path, telemetry.WithMaxBytes(cfg.Metrics.MaxBytes))
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("failed to open metrics file: %w", err)
		}
		metrics.SetExporter(exporter)
	}

	opts = append([]Option{memory.WithLogger(logger), memory.WithMetrics(metrics)}, opts...)
	mgr, err := memory.Open(ctx, cfg, opts...)
	if err != nil {
		metrics.Close()
		logger.Close()
		return nil, err
	}
	return mgr, nil
}

// OpenDir loads scopemem.yaml from dir and opens the memory layer.
func OpenDir(ctx context.Context, dir string, opts ...Option) (*Manager, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg, opts...)
}
