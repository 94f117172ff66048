package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestMemError_Error(t *testing.T) {
	err := New(CodeConfiguration, "unknown scope: weather")
	expected := "[CONFIGURATION_ERROR] unknown scope: weather"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestMemError_Wrap(t *testing.T) {
	inner := fmt.Errorf("database is locked")
	err := StorageUnavailable("pool_market", inner)

	if err.Error() != `[STORAGE_UNAVAILABLE] store "pool_market" unavailable: database is locked` {
		t.Errorf("unexpected error string: %s", err.Error())
	}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find inner error")
	}
}

func TestMemError_WithSuggestion(t *testing.T) {
	err := Configuration("unknown scope %q", "weather").
		WithSuggestion("add the scope to scopemem.yaml")

	if err.Suggestion != "add the scope to scopemem.yaml" {
		t.Errorf("unexpected suggestion: %s", err.Suggestion)
	}
}

func TestSentinels_MatchByCode(t *testing.T) {
	err := PermissionDenied("risk", "whale_agent", "read")

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is to match ErrPermissionDenied")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("permission error should not match ErrValidation")
	}
	if err.Scope != "risk" {
		t.Errorf("expected scope risk, got %q", err.Scope)
	}

	wrapped := fmt.Errorf("store: %w", Validation("content is required"))
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("expected wrapped validation error to match")
	}
}

func TestAsCode(t *testing.T) {
	err := Validation("unsupported priority %q", "urgent")
	if AsCode(err) != CodeValidation {
		t.Errorf("expected code %q, got %q", CodeValidation, AsCode(err))
	}

	plain := fmt.Errorf("plain error")
	if AsCode(plain) != "" {
		t.Error("expected empty code for non-MemError")
	}
}

func TestSuggestion(t *testing.T) {
	err := New(CodeConfiguration, "bad").WithSuggestion("check scope name")
	if Suggestion(err) != "check scope name" {
		t.Errorf("expected 'check scope name', got %q", Suggestion(err))
	}
	if Suggestion(fmt.Errorf("plain")) != "" {
		t.Error("expected empty suggestion for non-MemError")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(StorageUnavailable("agent_x", fmt.Errorf("disk full"))) {
		t.Error("storage errors should be transient")
	}
	for _, err := range []error{
		Configuration("unknown scope"),
		Validation("empty content"),
		PermissionDenied("risk", "a", "write"),
		fmt.Errorf("plain"),
	} {
		if IsTransient(err) {
			t.Errorf("expected %v to be non-transient", err)
		}
	}
}
