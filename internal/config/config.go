// Package config defines the runtime's configuration surface: provider
// credentials, loop limits, and tool bounds, decoded from YAML. Where the
// file comes from (disk, env, a secrets manager) is the caller's concern.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML durations given either as Go duration strings
// ("30s", "2m") or as bare integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full runtime configuration.
type Config struct {
	// Provider selects the default adapter: openai, openrouter, ollama,
	// anthropic, bedrock, or custom:<name>.
	Provider string `yaml:"provider"`

	// Model is the default model id for new conversations.
	Model string `yaml:"model"`

	// Credentials maps provider ids to their credentials.
	Credentials map[string]Credential `yaml:"credentials"`

	Loop  LoopConfig  `yaml:"loop"`
	Tools ToolsConfig `yaml:"tools"`
	HTTP  HTTPConfig  `yaml:"http"`

	// Storage selects conversation persistence: "memory" or a SQLite DSN
	// (a file path).
	Storage string `yaml:"storage"`
}

// Credential configures one provider.
type Credential struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	ModelID           string `yaml:"model_id"`
	CompatibilityMode string `yaml:"compatibility_mode"`

	AWSRegion          string `yaml:"aws_region"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSSessionToken    string `yaml:"aws_session_token"`
}

// LoopConfig bounds the turn loop.
type LoopConfig struct {
	MaxTurns               int           `yaml:"max_turns"`
	MaxRetryAttempts       int           `yaml:"max_retry_attempts"`
	MaxToolFailuresPerTurn int           `yaml:"max_tool_failure_per_turn"`
	DoomLoopThreshold      int           `yaml:"doom_loop_threshold"`
	ToolTimeout            Duration      `yaml:"tool_timeout"`
	ToolParallelism        int           `yaml:"tool_parallelism"`

	EvictionWindow  int `yaml:"eviction_window"`
	RetentionWindow int `yaml:"retention_window"`

	AsyncTools      []string `yaml:"async_tools"`
	RequireApproval []string `yaml:"require_approval"`
}

// ToolsConfig bounds the tool executors.
type ToolsConfig struct {
	Workspace            string `yaml:"workspace"`
	MaxFileSize          int64  `yaml:"max_file_size"`
	MaxSearchLines       int    `yaml:"max_search_lines"`
	FetchTruncationLimit int    `yaml:"fetch_truncation_limit"`
	ShellHeadLines       int    `yaml:"shell_head_lines"`
	ShellTailLines       int    `yaml:"shell_tail_lines"`
}

// HTTPConfig bounds outbound HTTP.
type HTTPConfig struct {
	ReadTimeout Duration `yaml:"read_timeout"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Provider: "anthropic",
		Storage:  "memory",
		Loop: LoopConfig{
			MaxTurns:          30,
			MaxRetryAttempts:  3,
			DoomLoopThreshold: 3,
			ToolTimeout:       Duration(2 * time.Minute),
			ToolParallelism:   4,
			EvictionWindow:    40,
			RetentionWindow:   12,
		},
		Tools: ToolsConfig{
			MaxFileSize:          256 * 1024,
			MaxSearchLines:       200,
			FetchTruncationLimit: 40000,
			ShellHeadLines:       100,
			ShellTailLines:       50,
		},
		HTTP: HTTPConfig{ReadTimeout: Duration(5 * time.Minute)},
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot run with.
func (c Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Loop.MaxTurns <= 0 {
		return fmt.Errorf("loop.max_turns must be positive")
	}
	if c.Loop.MaxRetryAttempts <= 0 {
		return fmt.Errorf("loop.max_retry_attempts must be positive")
	}
	if c.Loop.RetentionWindow < 0 || c.Loop.EvictionWindow < 0 {
		return fmt.Errorf("compaction windows must not be negative")
	}
	if c.Loop.EvictionWindow > 0 && c.Loop.RetentionWindow > 0 &&
		c.Loop.EvictionWindow < c.Loop.RetentionWindow {
		return fmt.Errorf("loop.eviction_window must be at least loop.retention_window")
	}
	return nil
}
