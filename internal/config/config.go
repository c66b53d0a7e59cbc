package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// PathsConfig holds path configuration.
type PathsConfig struct {
	KitDir   string `toml:"kit_dir"`
	StateDir string `toml:"state_dir"`
}

// DefaultsConfig holds default execution settings.
type DefaultsConfig struct {
	Interactive  bool          `toml:"interactive"`
	StepTimeout  time.Duration `toml:"step_timeout"`
	MaxRetries   int           `toml:"max_retries"`
	PackageTool  string        `toml:"package_tool"` // default package manager for install steps
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// AIProviderConfig holds per-provider transport settings.
type AIProviderConfig struct {
	APIKeyEnvVar string `toml:"api_key_env_var"`
	Command      string `toml:"command"`
	Model        string `toml:"model"`
}

// AIPricing is the cost-per-1k-tokens pricing table used by the Cost Tracker.
type AIPricing struct {
	InputPerKTokens  float64 `toml:"input_per_k_tokens"`
	OutputPerKTokens float64 `toml:"output_per_k_tokens"`
}

// AIConfig holds AI-subsystem settings: the execution mode, per-provider
// transport configuration, budget ceilings, and the pricing table consulted
// by the Cost Tracker.
type AIConfig struct {
	Mode             string                      `toml:"mode"` // api|command|stdout|off|auto
	DefaultProvider  string                       `toml:"default_provider"`
	MaxBudgetUsd     float64                      `toml:"max_budget_usd"`
	SoftBudgetUsd    float64                      `toml:"soft_budget_usd"`
	MaxContextTokens int                          `toml:"max_context_tokens"`
	Providers        map[string]AIProviderConfig  `toml:"providers"`
	Pricing          map[string]AIPricing         `toml:"pricing"`
}

// Config is the main configuration struct for the recipe engine.
type Config struct {
	Version  string         `toml:"version"`
	Paths    PathsConfig    `toml:"paths"`
	Defaults DefaultsConfig `toml:"defaults"`
	Logging  LoggingConfig  `toml:"logging"`
	AI       AIConfig       `toml:"ai"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			KitDir:   ".recipe-core/kits",
			StateDir: ".recipe-core/state",
		},
		Defaults: DefaultsConfig{
			Interactive: true,
			StepTimeout: 5 * time.Minute,
			MaxRetries:  0,
			PackageTool: "bun",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
			File:   "",
		},
		AI: AIConfig{
			Mode:             "auto",
			DefaultProvider:  "anthropic",
			MaxBudgetUsd:     0, // 0 = no ceiling
			SoftBudgetUsd:    0,
			MaxContextTokens: 8000,
			Providers: map[string]AIProviderConfig{
				"anthropic": {APIKeyEnvVar: "ANTHROPIC_API_KEY"},
				"openai":    {APIKeyEnvVar: "OPENAI_API_KEY"},
				"google":    {APIKeyEnvVar: "GOOGLE_GENERATIVE_AI_API_KEY"},
			},
			Pricing: map[string]AIPricing{},
		},
	}
}

// Load loads configuration from a single file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.recipe-core/config.toml -> .recipe-core/config.toml
// Later configs override earlier ones (project-level takes precedence).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".recipe-core", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".recipe-core", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Paths.KitDir == "" {
		return fmt.Errorf("kit_dir is required")
	}
	if c.Defaults.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// KitDir returns the absolute kit directory path.
func (c *Config) KitDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.KitDir) {
		return c.Paths.KitDir
	}
	return filepath.Join(baseDir, c.Paths.KitDir)
}

// StateDir returns the absolute state directory path.
func (c *Config) StateDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.StateDir) {
		return c.Paths.StateDir
	}
	return filepath.Join(baseDir, c.Paths.StateDir)
}

// LogFile returns the absolute log file path, or "" if logging to file is disabled.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(baseDir, c.Logging.File)
}

// ProviderConfig resolves provider settings by name, falling back to an
// empty config (api key env var lookup will simply fail) if unknown.
func (c *Config) ProviderConfig(name string) AIProviderConfig {
	if p, ok := c.AI.Providers[name]; ok {
		return p
	}
	return AIProviderConfig{}
}

// PriceFor returns the pricing entry for a model, or a zero-cost entry for
// unknown models (per spec: "unknown models cost 0").
func (c *Config) PriceFor(model string) AIPricing {
	if p, ok := c.AI.Pricing[model]; ok {
		return p
	}
	return AIPricing{}
}
