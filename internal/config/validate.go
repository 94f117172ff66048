package config

import (
	"fmt"
	"strings"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// ValidPriorities lists the accepted priority names.
var ValidPriorities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
}

// Validate checks the whole configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var problems []string

	validDrivers := map[string]bool{
		"sqlite":   true,
		"postgres": true,
		"redis":    true,
		"memory":   true,
	}
	if !validDrivers[cfg.Storage.Driver] {
		problems = append(problems, fmt.Sprintf("invalid storage driver: %s", cfg.Storage.Driver))
	}
	if (cfg.Storage.Driver == "postgres" || cfg.Storage.Driver == "redis") && cfg.Storage.DSN == "" {
		problems = append(problems, fmt.Sprintf("storage driver %s requires dsn", cfg.Storage.Driver))
	}

	if cfg.Query.MaxResults < 0 {
		problems = append(problems, "query.max_results must be non-negative")
	}
	if d, err := cfg.Query.ParsedDefaultWindow(); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("invalid query.default_window %q", cfg.Query.DefaultWindow))
	}
	if d, err := cfg.Cache.ParsedDefaultTTL(); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("invalid cache.default_ttl %q", cfg.Cache.DefaultTTL))
	} else if d > MaxRetention {
		problems = append(problems, fmt.Sprintf("cache.default_ttl %q exceeds 36500d", cfg.Cache.DefaultTTL))
	}
	if d, err := cfg.Sweeper.ParsedInterval(); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("invalid sweeper.interval %q", cfg.Sweeper.Interval))
	}

	if cfg.Metrics.MaxBytes < 0 {
		problems = append(problems, fmt.Sprintf("invalid metrics.max_bytes %d", cfg.Metrics.MaxBytes))
	}

	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Logging.Format] {
		problems = append(problems, fmt.Sprintf("invalid logging format: %s", cfg.Logging.Format))
	}

	problems = append(problems, validateScopes(cfg)...)
	problems = append(problems, validateHooks(cfg.Hooks, cfg.Scopes)...)

	if len(problems) > 0 {
		return memerrors.Configuration("config validation failed: %s", strings.Join(problems, "; ")).
			WithSuggestion("fix " + FileName + " and run `scopemem config validate`")
	}
	return nil
}

func validateScopes(cfg *Config) []string {
	var problems []string

	byName := make(map[string]*ScopeConfig, len(cfg.Scopes))
	for i := range cfg.Scopes {
		sc := &cfg.Scopes[i]
		if sc.Name == "" {
			problems = append(problems, "scope name is required")
			continue
		}
		if _, dup := byName[sc.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate scope name: %s", sc.Name))
		}
		byName[sc.Name] = sc

		// No scope may keep records forever.
		if sc.Retention == "" {
			problems = append(problems, fmt.Sprintf("scope %s requires a retention window", sc.Name))
		} else if d, err := sc.ParsedRetention(); err != nil {
			problems = append(problems, fmt.Sprintf("scope %s: invalid retention %q: %s", sc.Name, sc.Retention, err))
		} else if d <= 0 {
			problems = append(problems, fmt.Sprintf("scope %s: retention must be positive", sc.Name))
		} else if d > MaxRetention {
			problems = append(problems, fmt.Sprintf("scope %s: retention %q exceeds 36500d", sc.Name, sc.Retention))
		}

		if !ValidPriorities[sc.DefaultPriority] {
			problems = append(problems, fmt.Sprintf("scope %s: invalid default_priority %q", sc.Name, sc.DefaultPriority))
		}
		if len(sc.Access) == 0 {
			problems = append(problems, fmt.Sprintf("scope %s: access list is empty", sc.Name))
		}
		for _, a := range sc.Access {
			if strings.TrimSpace(a) == "" {
				problems = append(problems, fmt.Sprintf("scope %s: empty agent id in access list", sc.Name))
			}
		}
		if sc.Pool != "" && !sc.Shared {
			problems = append(problems, fmt.Sprintf("scope %s: pool is only valid for shared scopes", sc.Name))
		}
	}

	if sc, ok := byName[cfg.AlertsScope]; !ok {
		problems = append(problems, fmt.Sprintf("alerts scope %q is not defined", cfg.AlertsScope))
	} else if !sc.Shared {
		problems = append(problems, fmt.Sprintf("alerts scope %q must be shared", cfg.AlertsScope))
	}
	if sc, ok := byName[cfg.HandoffScope]; !ok {
		problems = append(problems, fmt.Sprintf("handoff scope %q is not defined", cfg.HandoffScope))
	} else if sc.Shared {
		problems = append(problems, fmt.Sprintf("handoff scope %q must be private", cfg.HandoffScope))
	}
	if _, ok := byName[cfg.CacheScope]; !ok {
		problems = append(problems, fmt.Sprintf("cache scope %q is not defined", cfg.CacheScope))
	}

	return problems
}

func validateHooks(hc HooksConfig, scopes []ScopeConfig) []string {
	var problems []string

	known := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		known[sc.Name] = true
	}

	validTypes := map[string]bool{"shell": true, "webhook": true, "log": true}
	for _, h := range hc.Hooks {
		if h.Name == "" {
			problems = append(problems, "hook name is required")
		}
		if !validTypes[h.Type] {
			problems = append(problems, fmt.Sprintf("hook %s: invalid type %q", h.Name, h.Type))
		}
		if h.Type == "shell" && h.Command == "" {
			problems = append(problems, fmt.Sprintf("hook %s: shell hook requires command", h.Name))
		}
		if h.Type == "webhook" && h.URL == "" {
			problems = append(problems, fmt.Sprintf("hook %s: webhook hook requires url", h.Name))
		}
		for _, s := range h.Scopes {
			if !known[s] {
				problems = append(problems, fmt.Sprintf("hook %s: unknown scope %q", h.Name, s))
			}
		}
	}
	return problems
}
