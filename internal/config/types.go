package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccessAll grants a scope to every agent.
const AccessAll = "all"

// MaxRetention bounds retention windows and cache TTLs. Expiry is stored as
// Unix nanoseconds, which run out in 2262.
const MaxRetention = 100 * 365 * 24 * time.Hour

// Config represents the memory layer configuration (scopemem.yaml)
type Config struct {
	Disabled     bool          `yaml:"disabled" json:"disabled"` // turns every operation into a no-op
	Storage      StorageConfig `yaml:"storage" json:"storage"`
	Query        QueryConfig   `yaml:"query" json:"query"`
	Cache        CacheConfig   `yaml:"cache" json:"cache"`
	Sweeper      SweeperConfig `yaml:"sweeper" json:"sweeper"`
	Logging      LoggingConfig `yaml:"logging" json:"logging"`
	Metrics      MetricsConfig `yaml:"metrics" json:"metrics"`
	Hooks        HooksConfig   `yaml:"hooks" json:"hooks"`
	HandoffScope string        `yaml:"handoff_scope" json:"handoff_scope"`
	AlertsScope  string        `yaml:"alerts_scope" json:"alerts_scope"`
	CacheScope   string        `yaml:"cache_scope" json:"cache_scope"`
	Scopes       []ScopeConfig `yaml:"scopes" json:"scopes"`
}

// StorageConfig selects the physical store driver
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`               // sqlite, postgres, redis, memory
	Path   string `yaml:"path" json:"path"`                   // sqlite directory, one .db file per store
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"` // postgres:// or redis:// URL
}

// QueryConfig bounds query results
type QueryConfig struct {
	MaxResults    int    `yaml:"max_results" json:"max_results"`
	DefaultWindow string `yaml:"default_window" json:"default_window"` // e.g. "1h"
}

// CacheConfig configures the API response cache
type CacheConfig struct {
	Disabled   bool   `yaml:"disabled" json:"disabled"`
	DefaultTTL string `yaml:"default_ttl" json:"default_ttl"` // e.g. "15m"
}

// SweeperConfig configures the retention sweeper
type SweeperConfig struct {
	Interval string `yaml:"interval" json:"interval"` // e.g. "5m"
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// MetricsConfig configures the JSONL metrics exporter
type MetricsConfig struct {
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	MaxBytes int64  `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"` // rotate to <path>.1 past this size
}

// HooksConfig configures memory event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
	Scopes   []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`   // only events for these scopes
}

// ScopeConfig defines one logical memory partition
type ScopeConfig struct {
	Name            string   `yaml:"name" json:"name"`
	Retention       string   `yaml:"retention" json:"retention"`               // e.g. "30d", "15m"
	DefaultPriority string   `yaml:"default_priority" json:"default_priority"` // critical, high, medium, low
	Access          []string `yaml:"access" json:"access"`                     // agent ids, or ["all"]
	Shared          bool     `yaml:"shared" json:"shared"`
	Pool            string   `yaml:"pool,omitempty" json:"pool,omitempty"` // shared pool name; defaults to scope name
}

// ParsedRetention converts the retention string to a time.Duration
func (s *ScopeConfig) ParsedRetention() (time.Duration, error) {
	return ParseDuration(s.Retention)
}

// PoolName returns the shared pool backing this scope.
func (s *ScopeConfig) PoolName() string {
	if s.Pool != "" {
		return s.Pool
	}
	return s.Name
}

// ParsedDefaultWindow converts the default recency window to time.Duration
func (q *QueryConfig) ParsedDefaultWindow() (time.Duration, error) {
	if q.DefaultWindow == "" {
		return time.Hour, nil
	}
	return ParseDuration(q.DefaultWindow)
}

// ParsedDefaultTTL converts the cache TTL string to time.Duration
func (c *CacheConfig) ParsedDefaultTTL() (time.Duration, error) {
	if c.DefaultTTL == "" {
		return 15 * time.Minute, nil
	}
	return ParseDuration(c.DefaultTTL)
}

// ParsedInterval converts the sweep interval string to time.Duration
func (s *SweeperConfig) ParsedInterval() (time.Duration, error) {
	if s.Interval == "" {
		return 5 * time.Minute, nil
	}
	return ParseDuration(s.Interval)
}

// ParseDuration extends time.ParseDuration with a day suffix ("30d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}
