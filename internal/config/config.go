// Package config loads the reviewer configuration. Precedence, lowest to
// highest: built-in defaults, the optional YAML config file, REDLINE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full reviewer configuration
type Config struct {
	// Model is the primary model for extraction, filtering, and review
	Model string `yaml:"model"`

	// AnnotateModel is the cheaper model used for per-issue annotation
	AnnotateModel string `yaml:"annotate_model"`

	// MaxComments caps the number of comments produced per run
	// Default: 25, Range: 1-200
	MaxComments int `yaml:"max_comments"`

	// MaxConcurrentTasks bounds fan-out parallelism within a pipeline stage
	// Default: 4, Range: 1-64
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// MaxConcurrentCalls bounds in-flight oracle API calls
	// Default: 3, Range: 1-32
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// CallsPerSecond rate-limits oracle API calls
	// Default: 2.0
	CallsPerSecond float64 `yaml:"calls_per_second"`

	// TokenOverlapThreshold is the fraction of significant quote tokens that
	// must appear in a candidate span for a lenient anchor match
	// Default: 0.7, Range: (0,1]
	TokenOverlapThreshold float64 `yaml:"token_overlap_threshold"`

	// SeverityWeight and ImportanceWeight set the dedup priority blend.
	// They must sum to 1.
	// Defaults: 0.6 and 0.4
	SeverityWeight   float64 `yaml:"severity_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`

	// DatabasePath is the SQLite file holding saved runs
	// Default: .redline/runs.db
	DatabasePath string `yaml:"database_path"`

	// RetentionDays is how long saved runs are kept before pruning.
	// 0 disables pruning.
	// Default: 90, Range: 0-730
	RetentionDays int `yaml:"retention_days"`

	// LogLevel is the slog level: debug, info, warn, or error
	// Default: info
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		MaxComments:           25,
		MaxConcurrentTasks:    4,
		MaxConcurrentCalls:    3,
		CallsPerSecond:        2.0,
		TokenOverlapThreshold: 0.7,
		SeverityWeight:        0.6,
		ImportanceWeight:      0.4,
		DatabasePath:          ".redline/runs.db",
		RetentionDays:         90,
		LogLevel:              "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (ignored if path is empty or the file does not exist), then REDLINE_*
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides config fields from REDLINE_* environment variables
func applyEnv(cfg *Config) error {
	if err := parseEnvString("REDLINE_MODEL", &cfg.Model); err != nil {
		return err
	}
	if err := parseEnvString("REDLINE_MODEL_ANNOTATE", &cfg.AnnotateModel); err != nil {
		return err
	}
	if err := parseEnvInt("REDLINE_MAX_COMMENTS", &cfg.MaxComments); err != nil {
		return err
	}
	if err := parseEnvInt("REDLINE_MAX_CONCURRENT_TASKS", &cfg.MaxConcurrentTasks); err != nil {
		return err
	}
	if err := parseEnvInt("REDLINE_MAX_CONCURRENT_CALLS", &cfg.MaxConcurrentCalls); err != nil {
		return err
	}
	if err := parseEnvFloat("REDLINE_CALLS_PER_SECOND", &cfg.CallsPerSecond); err != nil {
		return err
	}
	if err := parseEnvFloat("REDLINE_TOKEN_OVERLAP_THRESHOLD", &cfg.TokenOverlapThreshold); err != nil {
		return err
	}
	if err := parseEnvString("REDLINE_DATABASE_PATH", &cfg.DatabasePath); err != nil {
		return err
	}
	if err := parseEnvInt("REDLINE_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvString("REDLINE_LOG_LEVEL", &cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxComments < 1 || c.MaxComments > 200 {
		return fmt.Errorf("max_comments must be between 1 and 200 (got %d)", c.MaxComments)
	}
	if c.MaxConcurrentTasks < 1 || c.MaxConcurrentTasks > 64 {
		return fmt.Errorf("max_concurrent_tasks must be between 1 and 64 (got %d)", c.MaxConcurrentTasks)
	}
	if c.MaxConcurrentCalls < 1 || c.MaxConcurrentCalls > 32 {
		return fmt.Errorf("max_concurrent_calls must be between 1 and 32 (got %d)", c.MaxConcurrentCalls)
	}
	if c.CallsPerSecond <= 0 {
		return fmt.Errorf("calls_per_second must be positive (got %g)", c.CallsPerSecond)
	}
	if c.TokenOverlapThreshold <= 0 || c.TokenOverlapThreshold > 1 {
		return fmt.Errorf("token_overlap_threshold must be in (0,1] (got %g)", c.TokenOverlapThreshold)
	}
	if sum := c.SeverityWeight + c.ImportanceWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("severity_weight and importance_weight must sum to 1 (got %g)", sum)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.RetentionDays < 0 || c.RetentionDays > 730 {
		return fmt.Errorf("retention_days must be between 0 and 730 (got %d)", c.RetentionDays)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Model: %s, MaxComments: %d, MaxConcurrentTasks: %d, "+
			"MaxConcurrentCalls: %d, CallsPerSecond: %g, OverlapThreshold: %g, "+
			"DatabasePath: %s, RetentionDays: %d, LogLevel: %s}",
		c.Model, c.MaxComments, c.MaxConcurrentTasks, c.MaxConcurrentCalls,
		c.CallsPerSecond, c.TokenOverlapThreshold, c.DatabasePath,
		c.RetentionDays, c.LogLevel,
	)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
