// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the analyst service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	LLM      LLMConfig      `toml:"llm"`       // Default model for analysis steps
	SmallLLM LLMConfig      `toml:"small_llm"` // Fast/cheap model for naming and descriptions
	Sessions SessionsConfig `toml:"sessions"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Dataset  DatasetConfig  `toml:"dataset"`
	Usage    UsageConfig    `toml:"usage"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LLMConfig contains model provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
	Thinking     string `toml:"thinking"`      // Thinking level: auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // Max retry attempts
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration, e.g. "60s"
}

// SessionsConfig contains session lifecycle settings.
type SessionsConfig struct {
	TTLMinutes   int `toml:"ttl_minutes"`   // Idle time before a session is evicted
	SweepMinutes int `toml:"sweep_minutes"` // Interval between background eviction sweeps
}

// PipelineConfig contains step execution settings.
type PipelineConfig struct {
	StepTimeoutSeconds    int `toml:"step_timeout_seconds"`    // Per-step model call timeout
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"` // Whole-request streaming deadline
	MaxWorkers            int `toml:"max_workers"`             // Hard cap on the worker pool
}

// DatasetConfig contains default dataset settings.
type DatasetConfig struct {
	Path string `toml:"path"` // CSV loaded into new sessions
	Name string `toml:"name"`
}

// UsageConfig contains usage accounting settings.
type UsageConfig struct {
	DatabaseURLEnv string `toml:"database_url_env"` // Env var holding the Postgres URL
	QueueSize      int    `toml:"queue_size"`       // Pending records before writes are dropped
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8000",
		},
		LLM: LLMConfig{
			Model:        "gpt-4o-mini",
			MaxTokens:    6000,
			MaxRetries:   5,
			RetryBackoff: "60s",
		},
		SmallLLM: LLMConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 300,
		},
		Sessions: SessionsConfig{
			TTLMinutes:   60,
			SweepMinutes: 10,
		},
		Pipeline: PipelineConfig{
			StepTimeoutSeconds:    60,
			RequestTimeoutSeconds: 60,
			MaxWorkers:            16,
		},
		Usage: UsageConfig{
			DatabaseURLEnv: "DATABASE_URL",
			QueueSize:      256,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from analyst.toml in the current directory.
// Missing file is not an error; defaults apply.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, "analyst.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// SessionTTL returns the configured session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTLMinutes) * time.Minute
}

// StepTimeout returns the per-step execution timeout.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Pipeline.StepTimeoutSeconds) * time.Second
}

// RequestTimeout returns the whole-request streaming deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pipeline.RequestTimeoutSeconds) * time.Second
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google", "gemini":
		return "GEMINI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// DatabaseURL returns the Postgres connection string, or "" if unset.
func (c *Config) DatabaseURL() string {
	envVar := c.Usage.DatabaseURLEnv
	if envVar == "" {
		envVar = "DATABASE_URL"
	}
	return os.Getenv(envVar)
}
