package env

import "testing"

func TestGetPrefersPrefixedKey(t *testing.T) {
	t.Setenv("BAGFLOW_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("LOG_FORMAT", "x"); got != "console" {
		t.Fatalf("expected prefixed value, got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("BAGFLOW_LOG_FORMAT", "  ")
	t.Setenv("LOG_FORMAT", "")
	if got := Get("LOG_FORMAT", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
