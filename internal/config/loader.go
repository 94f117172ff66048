package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = "scopemem.yaml"

var (
	envPattern = regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// Load loads scopemem.yaml from dir
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile loads a configuration file. A missing file yields the default
// configuration.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}

// DefaultConfig returns the built-in configuration: a SQLite store under
// data/memory and the trading scope table.
func DefaultConfig() *Config {
	cfg := &Config{
		Scopes: DefaultScopes(),
	}
	applyDefaults(cfg)
	return cfg
}

// DefaultScopes returns the stock scope table.
func DefaultScopes() []ScopeConfig {
	all := []string{AccessAll}
	return []ScopeConfig{
		// Critical data - 30 days
		{Name: "risk", Retention: "30d", DefaultPriority: "high", Shared: true,
			Access: []string{"risk_agent", "trading_agent", "strategy_agent"}},
		{Name: "trading", Retention: "30d", DefaultPriority: "high", Shared: true,
			Access: []string{"trading_agent", "risk_agent", "strategy_agent"}},
		{Name: "alerts", Retention: "30d", DefaultPriority: "high", Shared: true, Access: all},

		// Analysis data - 7 days
		{Name: "market", Retention: "7d", DefaultPriority: "medium", Shared: true,
			Pool: "market_analysis", Access: all},
		{Name: "strategy", Retention: "7d", DefaultPriority: "medium", Shared: true,
			Pool: "strategy_development", Access: []string{"strategy_agent", "trading_agent", "risk_agent"}},
		{Name: "sentiment", Retention: "7d", DefaultPriority: "medium",
			Access: []string{"sentiment_agent"}},
		{Name: "whale", Retention: "7d", DefaultPriority: "medium",
			Access: []string{"whale_agent"}},
		{Name: "funding", Retention: "7d", DefaultPriority: "medium", Access: all},
		{Name: "liquidation", Retention: "7d", DefaultPriority: "medium", Access: all},
		{Name: "copybot", Retention: "7d", DefaultPriority: "medium", Access: all},

		// Coordination
		{Name: "global", Retention: "14d", DefaultPriority: "medium", Shared: true, Access: all},
		{Name: "handoff", Retention: "7d", DefaultPriority: "high", Access: all},

		// One agent loop cycle
		{Name: "cache", Retention: "15m", DefaultPriority: "low", Shared: true, Access: all},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join("data", "memory")
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = os.Getenv("SCOPEMEM_DSN")
	}
	if cfg.Query.MaxResults == 0 {
		cfg.Query.MaxResults = 20
	}
	if cfg.Query.DefaultWindow == "" {
		cfg.Query.DefaultWindow = "1h"
	}
	if cfg.Cache.DefaultTTL == "" {
		cfg.Cache.DefaultTTL = "15m"
	}
	if cfg.Sweeper.Interval == "" {
		cfg.Sweeper.Interval = "5m"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.HandoffScope == "" {
		cfg.HandoffScope = "handoff"
	}
	if cfg.AlertsScope == "" {
		cfg.AlertsScope = "alerts"
	}
	if cfg.CacheScope == "" {
		cfg.CacheScope = "cache"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	for i := range cfg.Scopes {
		if cfg.Scopes[i].DefaultPriority == "" {
			cfg.Scopes[i].DefaultPriority = "medium"
		}
		if len(cfg.Scopes[i].Access) == 0 {
			cfg.Scopes[i].Access = []string{AccessAll}
		}
	}
}

// Marshal renders the configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
