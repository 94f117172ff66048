package event

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cadre-oss/scopemem/internal/config"
)

func TestShellHook_Matches(t *testing.T) {
	hook := NewShellHook("test", "echo hi", []EventType{RecordStored, BroadcastSent}, false)

	if !hook.Matches(RecordStored) {
		t.Error("should match RecordStored")
	}
	if !hook.Matches(BroadcastSent) {
		t.Error("should match BroadcastSent")
	}
	if hook.Matches(HandoffSent) {
		t.Error("should not match HandoffSent")
	}
}

func TestShellHook_Execute(t *testing.T) {
	hook := NewShellHook("test", "true", []EventType{RecordStored}, false)

	ev := NewEvent(RecordStored, map[string]interface{}{"scope": "risk"})
	err := hook.Handle(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShellHook_Failure(t *testing.T) {
	hook := NewShellHook("test", "false", []EventType{RecordStored}, true)

	ev := NewEvent(RecordStored, nil)
	err := hook.Handle(ev)
	if err == nil {
		t.Fatal("expected error from failed shell command")
	}
}

func TestWebhookHook_Execute(t *testing.T) {
	var received struct {
		mu     sync.Mutex
		body   []byte
		header http.Header
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.mu.Lock()
		received.body = body
		received.header = r.Header.Clone()
		received.mu.Unlock()
		w.WriteHeader(200)
	}))
	defer server.Close()

	hook := NewWebhookHook("test", server.URL, []EventType{RecordStored}, true)
	ev := NewEvent(RecordStored, map[string]interface{}{"id": "r1"}).About("risk_agent", "risk")
	err := hook.Handle(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	received.mu.Lock()
	defer received.mu.Unlock()

	var payload Event
	if err := json.Unmarshal(received.body, &payload); err != nil {
		t.Fatalf("failed to parse webhook payload: %v", err)
	}
	if payload.Type != RecordStored || payload.Agent != "risk_agent" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if got := received.header.Get("X-Scopemem-Event"); got != "memory.stored" {
		t.Errorf("expected event header memory.stored, got %q", got)
	}
	if got := received.header.Get("X-Scopemem-Scope"); got != "risk" {
		t.Errorf("expected scope header risk, got %q", got)
	}
}

func TestWebhookHook_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	hook := NewWebhookHook("test", server.URL, []EventType{AccessDenied}, true)
	err := hook.Handle(NewEvent(AccessDenied, nil))
	if err == nil {
		t.Fatal("expected error from 500 status")
	}
}

func TestLogHook_Execute(t *testing.T) {
	logger := &testLogger{}
	hook := NewLogHook("test", []EventType{RecordStored}, logger, "info")

	ev := NewEvent(RecordStored, map[string]interface{}{"id": "r1"}).About("risk_agent", "risk")
	if err := hook.Handle(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// testLogger is a FullLogger, so Info is used and no warning recorded.
	if len(logger.warnings) != 0 {
		t.Errorf("expected no warnings, got %v", logger.warnings)
	}
}

func TestShellHook_Environment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	hook := NewShellHook("env", `printf "%s %s %s" "$SCOPEMEM_EVENT_TYPE" "$SCOPEMEM_EVENT_AGENT" "$SCOPEMEM_EVENT_SCOPE" > `+out, nil, true)

	if err := hook.Handle(NewEvent(BroadcastSent, nil).About("risk_agent", "alerts")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "memory.broadcast risk_agent alerts" {
		t.Errorf("unexpected environment %q", data)
	}
}

func TestLogHook_AlwaysNonBlocking(t *testing.T) {
	hook := NewLogHook("test", nil, &testLogger{}, "debug")
	if hook.IsBlocking() {
		t.Error("log hook should always be non-blocking")
	}
}

func TestBaseHook_MatchesAll(t *testing.T) {
	h := &baseHook{name: "all", events: nil}
	if !h.Matches(RecordStored) {
		t.Error("nil events should match everything")
	}
	if !h.Matches(AccessDenied) {
		t.Error("nil events should match everything")
	}
}

func TestBaseHook_MatchesNone(t *testing.T) {
	h := &baseHook{name: "specific", events: []EventType{HandoffSent}}
	if h.Matches(RecordStored) {
		t.Error("should not match RecordStored")
	}
}

func TestBaseHook_MatchesScope(t *testing.T) {
	h := &baseHook{name: "scoped"}
	if !h.MatchesScope("") || !h.MatchesScope("whale") {
		t.Error("unrestricted hook should match every scope")
	}

	h.restrictScopes([]string{"risk", "alerts"})
	if !h.MatchesScope("risk") || !h.MatchesScope("alerts") {
		t.Error("should match listed scopes")
	}
	if h.MatchesScope("whale") {
		t.Error("should not match whale")
	}
	if h.MatchesScope("") {
		t.Error("restricted hook should not match scopeless events")
	}
}

func TestBuildHooks(t *testing.T) {
	hooks, err := BuildHooks([]config.HookConfig{
		{Name: "notify", Type: "webhook", URL: "http://localhost:9/alerts", Events: []string{"memory.broadcast"}},
		{Name: "audit", Type: "log", Level: "warn", Scopes: []string{"risk"}},
		{Name: "page", Type: "shell", Command: "true", Blocking: true, Events: []string{"memory.denied"}},
	}, &testLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hooks) != 3 {
		t.Fatalf("expected 3 hooks, got %d", len(hooks))
	}
	if !hooks[0].Matches(BroadcastSent) || hooks[0].Matches(RecordStored) {
		t.Error("webhook should only match memory.broadcast")
	}
	if !hooks[1].Matches(RetentionSwept) {
		t.Error("log hook without events should match every type")
	}
	if sf, ok := hooks[1].(ScopeFilter); !ok || sf.MatchesScope("whale") || !sf.MatchesScope("risk") {
		t.Error("log hook should only match the risk scope")
	}
	if !hooks[2].IsBlocking() {
		t.Error("shell hook should be blocking")
	}

	if _, err := BuildHooks([]config.HookConfig{{Name: "x", Type: "pause"}}, nil); err == nil {
		t.Error("expected error for unknown hook type")
	}
}
