package utils

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mdobak/go-xerrors"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("NOISE_LAB_TEST_VALUE", "  hello ")
	if got := GetEnv("NOISE_LAB_TEST_VALUE", "fallback"); got != "hello" {
		t.Errorf("Expected trimmed value 'hello', got %q", got)
	}
	if got := GetEnv("NOISE_LAB_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
	if got := GetEnv("NOISE_LAB_TEST_MISSING"); got != "" {
		t.Errorf("Expected empty string without fallback, got %q", got)
	}
}

func TestTypedEnvHelpers(t *testing.T) {
	t.Setenv("NL_INT", "42")
	t.Setenv("NL_FLOAT", "0.25")
	t.Setenv("NL_BOOL", "false")
	t.Setenv("NL_SECONDS", "1.5")
	t.Setenv("NL_BROKEN", "nope")

	if got := GetEnvInt("NL_INT", 1); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := GetEnvInt("NL_BROKEN", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
	if got := GetEnvFloat("NL_FLOAT", 1); got != 0.25 {
		t.Errorf("Expected 0.25, got %f", got)
	}
	if got := GetEnvBool("NL_BOOL", true); got {
		t.Error("Expected false")
	}
	if got := GetEnvSeconds("NL_SECONDS", time.Second); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s, got %s", got)
	}
	if got := GetEnvSeconds("NL_BROKEN", 30*time.Second); got != 30*time.Second {
		t.Errorf("Expected fallback 30s, got %s", got)
	}
}

func TestNewShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewShortID()
		if len(id) != 8 {
			t.Fatalf("Expected 8 characters, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestReplaceAttrExpandsErrors(t *testing.T) {
	attr := replaceAttr(nil, slog.Any("error", xerrors.New("boom")))
	if attr.Value.Kind() != slog.KindGroup {
		t.Fatalf("Expected group value, got %v", attr.Value.Kind())
	}

	group := attr.Value.Group()
	if len(group) != 2 {
		t.Fatalf("Expected msg and trace attributes, got %d", len(group))
	}
	if group[0].Key != "msg" || group[0].Value.String() != "boom" {
		t.Errorf("Expected msg=boom, got %s=%s", group[0].Key, group[0].Value.String())
	}
	if group[1].Key != "trace" {
		t.Errorf("Expected trace attribute, got %s", group[1].Key)
	}

	plain := replaceAttr(nil, slog.Any("error", errors.New("plain")))
	if got := len(plain.Value.Group()); got != 1 {
		t.Errorf("Expected only msg for an error without stack, got %d attributes", got)
	}
}
