package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
)

// Hook processes lifecycle events.
type Hook interface {
	// Name returns the hook's identifier.
	Name() string
	// Matches returns true if the hook should handle this event type.
	Matches(t EventType) bool
	// IsBlocking returns true if execution should wait for this hook.
	IsBlocking() bool
	// Handle processes an event. For blocking hooks, an error stops execution.
	Handle(ev Event) error
}

// baseHook holds the name, filters and blocking flag shared by every hook.
type baseHook struct {
	name     string
	events   []EventType
	scopes   map[string]bool
	blocking bool
}

func (h *baseHook) Name() string     { return h.name }
func (h *baseHook) IsBlocking() bool { return h.blocking }

// Matches reports whether t is in the hook's event list. An empty list
// matches every event.
func (h *baseHook) Matches(t EventType) bool {
	if len(h.events) == 0 {
		return true
	}
	for _, ev := range h.events {
		if ev == t {
			return true
		}
	}
	return false
}

// MatchesScope reports whether scope is in the hook's scope list. A hook
// restricted to scopes never sees events without one.
func (h *baseHook) MatchesScope(scope string) bool {
	if len(h.scopes) == 0 {
		return true
	}
	return h.scopes[scope]
}

func (h *baseHook) restrictScopes(scopes []string) {
	if len(scopes) == 0 {
		return
	}
	h.scopes = make(map[string]bool, len(scopes))
	for _, s := range scopes {
		h.scopes[s] = true
	}
}

// ShellHook executes a shell command with event data in environment variables.
//
// The command sees SCOPEMEM_EVENT_TYPE, SCOPEMEM_EVENT_AGENT,
// SCOPEMEM_EVENT_SCOPE and the whole event as SCOPEMEM_EVENT_JSON.
type ShellHook struct {
	baseHook
	Command string
}

func NewShellHook(name, command string, events []EventType, blocking bool) *ShellHook {
	return &ShellHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		Command:  command,
	}
}

func (h *ShellHook) Handle(ev Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Env = append(os.Environ(), ev.env(eventJSON)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s failed: %w", h.name, err)
	}
	return nil
}

// WebhookHook POSTs the event as JSON. The event type and scope are also
// sent as X-Scopemem-Event and X-Scopemem-Scope headers for routing.
type WebhookHook struct {
	baseHook
	URL    string
	client *http.Client
}

func NewWebhookHook(name, url string, events []EventType, blocking bool) *WebhookHook {
	return &WebhookHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		URL:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *WebhookHook) Handle(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scopemem-Event", string(ev.Type))
	if ev.Scope != "" {
		req.Header.Set("X-Scopemem-Scope", ev.Scope)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", h.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", h.name, resp.StatusCode)
	}
	return nil
}

// LogHook logs events at the configured level. Always non-blocking.
type LogHook struct {
	baseHook
	logger Logger
	level  string // "debug", "info", "warn"
}

// FullLogger extends Logger with additional log levels for the LogHook.
type FullLogger interface {
	Logger
	Info(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
}

func NewLogHook(name string, events []EventType, logger Logger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		baseHook: baseHook{name: name, events: events, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev Event) error {
	msg := fmt.Sprintf("[event] %s", ev.Type)
	keyvals := make([]interface{}, 0, len(ev.Data)*2+6)
	keyvals = append(keyvals, "event_type", string(ev.Type))
	if ev.Agent != "" {
		keyvals = append(keyvals, "agent", ev.Agent)
	}
	if ev.Scope != "" {
		keyvals = append(keyvals, "scope", ev.Scope)
	}
	for k, v := range ev.Data {
		keyvals = append(keyvals, k, v)
	}

	if fl, ok := h.logger.(FullLogger); ok {
		switch h.level {
		case "debug":
			fl.Debug(msg, keyvals...)
		case "warn":
			fl.Warn(msg, keyvals...)
		default:
			fl.Info(msg, keyvals...)
		}
	} else {
		h.logger.Warn(msg, keyvals...)
	}
	return nil
}

// BuildHooks turns hook configuration into hooks ready to register.
func BuildHooks(cfgs []config.HookConfig, logger Logger) ([]Hook, error) {
	hooks := make([]Hook, 0, len(cfgs))
	for _, hc := range cfgs {
		events := make([]EventType, 0, len(hc.Events))
		for _, e := range hc.Events {
			events = append(events, EventType(e))
		}

		var h interface {
			Hook
			restrictScopes([]string)
		}
		switch hc.Type {
		case "shell":
			h = NewShellHook(hc.Name, hc.Command, events, hc.Blocking)
		case "webhook":
			h = NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking)
		case "log":
			h = NewLogHook(hc.Name, events, logger, hc.Level)
		default:
			return nil, fmt.Errorf("unknown hook type %q for hook %s", hc.Type, hc.Name)
		}
		h.restrictScopes(hc.Scopes)
		hooks = append(hooks, h)
	}
	return hooks, nil
}
