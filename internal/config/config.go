// ABOUTME: Configuration loading and parsing for the symphony server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete symphony server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Assistant AssistantConfig `yaml:"assistant"`
	Tools     []ToolService   `yaml:"tools"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the observer-facing listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds history store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OpenAIConfig holds completion service credentials.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AssistantConfig holds the default assistant participant.
type AssistantConfig struct {
	ModelID     string `yaml:"model_id"`
	Description string `yaml:"description"`
}

// ToolService declares one external tool-execution service and the file
// carrying its function descriptor set.
type ToolService struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	Descriptors string `yaml:"descriptors"`
}

// TimeoutsConfig holds per-call deadlines for collaborator calls.
type TimeoutsConfig struct {
	ModelCall time.Duration `yaml:"-"`
	ToolCall  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ModelCallRaw string `yaml:"model_call"`
	ToolCallRaw  string `yaml:"tool_call"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. An unset variable becomes an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "localhost:3001"
	}
	if c.Assistant.ModelID == "" {
		c.Assistant.ModelID = "gpt-4-1106-preview"
	}
	if c.Assistant.Description == "" {
		c.Assistant.Description = "You are a friendly assistant. Keep your responses short."
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	for i, svc := range c.Tools {
		if svc.Name == "" {
			return fmt.Errorf("tools[%d].name is required", i)
		}
		if svc.BaseURL == "" {
			return fmt.Errorf("tools[%d].base_url is required", i)
		}
		if svc.Descriptors == "" {
			return fmt.Errorf("tools[%d].descriptors is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Timeouts.ModelCallRaw != "" {
		cfg.Timeouts.ModelCall, err = time.ParseDuration(cfg.Timeouts.ModelCallRaw)
		if err != nil {
			return fmt.Errorf("parsing model_call %q: %w", cfg.Timeouts.ModelCallRaw, err)
		}
	}

	if cfg.Timeouts.ToolCallRaw != "" {
		cfg.Timeouts.ToolCall, err = time.ParseDuration(cfg.Timeouts.ToolCallRaw)
		if err != nil {
			return fmt.Errorf("parsing tool_call %q: %w", cfg.Timeouts.ToolCallRaw, err)
		}
	}

	return nil
}
