package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	raw := []byte(`
provider: openrouter
model: anthropic/claude-sonnet-4
credentials:
  openrouter:
    api_key: sk-or-test
loop:
  max_turns: 5
  max_tool_failure_per_turn: 3
  tool_timeout: 30s
tools:
  max_search_lines: 50
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "openrouter" || cfg.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.Loop.MaxTurns != 5 || cfg.Loop.ToolTimeout.Std() != 30*time.Second {
		t.Errorf("loop = %+v", cfg.Loop)
	}
	// Untouched fields keep their defaults.
	if cfg.Loop.MaxRetryAttempts != 3 || cfg.Tools.ShellHeadLines != 100 {
		t.Errorf("defaults lost: %+v %+v", cfg.Loop, cfg.Tools)
	}
	if cfg.Tools.MaxSearchLines != 50 {
		t.Errorf("max_search_lines = %d", cfg.Tools.MaxSearchLines)
	}
	if cfg.Credentials["openrouter"].APIKey != "sk-or-test" {
		t.Error("credential not decoded")
	}
}

func TestParseRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"no provider", "provider: ''", "provider is required"},
		{"bad turns", "loop: {max_turns: -1}", "max_turns"},
		{"window inversion", "loop: {eviction_window: 5, retention_window: 10}", "eviction_window"},
		{"not yaml", ": : :", "decode config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}
