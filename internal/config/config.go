// Package config loads shoptalk configuration from YAML with sensible
// defaults and environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all shoptalk configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM configures the generation collaborator.
	LLM LLMConfig `yaml:"llm"`

	// Store configures the inventory/ledger database.
	Store StoreConfig `yaml:"store"`

	// Engine configures payload execution.
	Engine EngineConfig `yaml:"engine"`

	// Logging configures categorized debug logging.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai, mock
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig configures the SQLite store and its seed fixture.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	FixturePath  string `yaml:"fixture_path"` // empty means the built-in fixture
}

// EngineConfig selects and bounds the execution engine.
type EngineConfig struct {
	// Mode is "plan" (validated operation list, atomic; default) or "raw"
	// (yaegi-interpreted Go payload, name-visibility restriction only).
	Mode    string `yaml:"mode"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Engine modes.
const (
	EngineModePlan = "plan"
	EngineModeRaw  = "raw"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Name: "shoptalk",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "2m",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".shoptalk", "store.db"),
		},
		Engine: EngineConfig{
			Mode:    EngineModePlan,
			Timeout: "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, filling missing values with defaults
// and applying environment overrides. A missing file is not an error: the
// defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets live outside the config file.
func (c *Config) applyEnv() {
	if key := os.Getenv("SHOPTALK_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("SHOPTALK_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
}

func (c *Config) validate() error {
	switch c.Engine.Mode {
	case EngineModePlan, EngineModeRaw:
	default:
		return fmt.Errorf("invalid engine mode %q (want %q or %q)", c.Engine.Mode, EngineModePlan, EngineModeRaw)
	}
	if _, err := time.ParseDuration(c.Engine.Timeout); err != nil {
		return fmt.Errorf("invalid engine timeout %q: %w", c.Engine.Timeout, err)
	}
	return nil
}

// EngineTimeout returns the parsed execution deadline.
func (c *Config) EngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LLMTimeout returns the parsed generation-call deadline.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}
