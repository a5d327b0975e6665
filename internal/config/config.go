// Package config handles node configuration for the dialogue engine.
//
// Each node of the turn router is configured by a named YAML block. Unknown
// keys are preserved on load and written back on save, so operator-added
// annotations survive a round trip. Validation runs once at load time and a
// malformed block is fatal before any turn is processed.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// LLMConfig selects a model and its sampling parameters for one node.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Streaming   bool    `yaml:"streaming"`

	Extra map[string]any `yaml:",inline"`
}

// IntentConfig configures the fast/slow intent classifier pair.
type IntentConfig struct {
	LLMFast LLMConfig  `yaml:"llm_fast"`
	LLMSlow *LLMConfig `yaml:"llm_slow,omitempty"`
	// ConfidenceThreshold is the escalation bar: a fast result below it is
	// re-classified by the slow model when one is configured.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxHistoryLimit     int     `yaml:"max_history_limit"`

	Extra map[string]any `yaml:",inline"`
}

// RouterConfig configures turn routing decisions.
type RouterConfig struct {
	// ConfidenceThreshold is the clarification bar: intent results below it
	// are routed to the clarification node.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxStoredMessages caps the persisted thread history. Older messages
	// are dropped on save once a thread exceeds it.
	MaxStoredMessages int `yaml:"max_stored_messages"`

	Extra map[string]any `yaml:",inline"`
}

// PlannerConfig configures the plan-authoring node.
type PlannerConfig struct {
	LLM         LLMConfig `yaml:"llm"`
	MaxAttempts int       `yaml:"max_attempts"`

	Extra map[string]any `yaml:",inline"`
}

// ExecutionConfig configures the tool-calling execution orchestrator.
type ExecutionConfig struct {
	LLM             LLMConfig `yaml:"llm"`
	MaxIterations   int       `yaml:"max_iterations"`
	MaxHistoryLimit int       `yaml:"max_history_limit"`

	Extra map[string]any `yaml:",inline"`
}

// SuggestorConfig configures the optional coaching-suggestion node. Enabled
// decides at wiring time whether the node exists at all; a disabled suggestor
// is simply never constructed.
type SuggestorConfig struct {
	LLM               LLMConfig `yaml:"llm"`
	Enabled           bool      `yaml:"enabled"`
	MinSuggestiveness float64   `yaml:"min_suggestiveness"`

	Extra map[string]any `yaml:",inline"`
}

// ClarificationConfig configures the clarification-authoring node.
type ClarificationConfig struct {
	LLM LLMConfig `yaml:"llm"`

	Extra map[string]any `yaml:",inline"`
}

// DataAvailabilityConfig configures the capability-question node.
type DataAvailabilityConfig struct {
	LLM LLMConfig `yaml:"llm"`

	Extra map[string]any `yaml:",inline"`
}

// Config is the full per-node configuration tree.
type Config struct {
	Router           RouterConfig           `yaml:"router"`
	Intent           IntentConfig           `yaml:"intent"`
	Clarification    ClarificationConfig    `yaml:"clarification"`
	DataAvailability DataAvailabilityConfig `yaml:"data_availability"`
	Planner          PlannerConfig          `yaml:"planner"`
	Execution        ExecutionConfig        `yaml:"execution"`
	Suggestor        SuggestorConfig        `yaml:"suggestor"`

	Extra map[string]any `yaml:",inline"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Router: RouterConfig{ConfidenceThreshold: 0.75, MaxStoredMessages: 50},
		Intent: IntentConfig{
			LLMFast:             LLMConfig{Model: "gpt-4o-mini", Temperature: 0},
			LLMSlow:             &LLMConfig{Model: "gpt-4o", Temperature: 0},
			ConfidenceThreshold: 0.9,
			MaxHistoryLimit:     20,
		},
		Clarification:    ClarificationConfig{LLM: LLMConfig{Model: "gpt-4o-mini", Temperature: 0.3}},
		DataAvailability: DataAvailabilityConfig{LLM: LLMConfig{Model: "gpt-4o-mini", Temperature: 0}},
		Planner: PlannerConfig{
			LLM:         LLMConfig{Model: "gpt-4o", Temperature: 0},
			MaxAttempts: 2,
		},
		Execution: ExecutionConfig{
			LLM:             LLMConfig{Model: "gpt-4o", Temperature: 0},
			MaxIterations:   5,
			MaxHistoryLimit: 20,
		},
		Suggestor: SuggestorConfig{
			LLM:               LLMConfig{Model: "gpt-4o-mini", Temperature: 0.7},
			Enabled:           true,
			MinSuggestiveness: 0.3,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// Environment variable references in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: failed to read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config.Load: failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration back to a YAML file, including any unknown
// keys captured on load.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config.Save: failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config.Save: failed to write %s: %w", path, err)
	}
	return nil
}

// Validate checks that every node block is well formed. It is called at
// load time; node constructors assume a validated config.
func (c *Config) Validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be in [0,1], got %v", c.Router.ConfidenceThreshold)
	}
	if c.Router.MaxStoredMessages < 1 {
		return fmt.Errorf("router.max_stored_messages must be at least 1, got %d", c.Router.MaxStoredMessages)
	}
	if c.Intent.ConfidenceThreshold < 0 || c.Intent.ConfidenceThreshold > 1 {
		return fmt.Errorf("intent.confidence_threshold must be in [0,1], got %v", c.Intent.ConfidenceThreshold)
	}
	if c.Intent.LLMFast.Model == "" {
		return fmt.Errorf("intent.llm_fast.model is required")
	}
	if c.Intent.MaxHistoryLimit < 1 {
		return fmt.Errorf("intent.max_history_limit must be at least 1, got %d", c.Intent.MaxHistoryLimit)
	}
	if c.Planner.MaxAttempts < 1 {
		return fmt.Errorf("planner.max_attempts must be at least 1, got %d", c.Planner.MaxAttempts)
	}
	if c.Planner.LLM.Model == "" {
		return fmt.Errorf("planner.llm.model is required")
	}
	if c.Execution.MaxIterations < 1 {
		return fmt.Errorf("execution.max_iterations must be at least 1, got %d", c.Execution.MaxIterations)
	}
	if c.Execution.MaxHistoryLimit < 1 {
		return fmt.Errorf("execution.max_history_limit must be at least 1, got %d", c.Execution.MaxHistoryLimit)
	}
	if c.Execution.LLM.Model == "" {
		return fmt.Errorf("execution.llm.model is required")
	}
	if c.Suggestor.MinSuggestiveness < 0 || c.Suggestor.MinSuggestiveness > 1 {
		return fmt.Errorf("suggestor.min_suggestiveness must be in [0,1], got %v", c.Suggestor.MinSuggestiveness)
	}
	if c.Suggestor.Enabled && c.Suggestor.LLM.Model == "" {
		return fmt.Errorf("suggestor.llm.model is required when suggestor is enabled")
	}
	for _, check := range []struct {
		name string
		temp float64
	}{
		{"intent.llm_fast", c.Intent.LLMFast.Temperature},
		{"planner.llm", c.Planner.LLM.Temperature},
		{"execution.llm", c.Execution.LLM.Temperature},
		{"suggestor.llm", c.Suggestor.LLM.Temperature},
	} {
		if check.temp < 0 || check.temp > 2 {
			return fmt.Errorf("%s.temperature must be in [0,2], got %v", check.name, check.temp)
		}
	}
	return nil
}

// Settings holds process-level environment settings, distinct from the node
// configuration tree. Populated from FITBITBOT_* environment variables.
type Settings struct {
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	DatabaseDSN  string `envconfig:"DATABASE_DSN" default:"file:fitbit-bot.db?_foreign_keys=on"`
	Addr         string `envconfig:"ADDR" default:":8080"`
	ConfigPath   string `envconfig:"CONFIG_PATH"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadSettings reads process settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("FITBITBOT", &s); err != nil {
		return nil, fmt.Errorf("config.LoadSettings: %w", err)
	}
	return &s, nil
}
