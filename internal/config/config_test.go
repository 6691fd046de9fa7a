package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defaults := Default()
	if cfg.MaxComments != defaults.MaxComments {
		t.Errorf("MaxComments = %v, want %v", cfg.MaxComments, defaults.MaxComments)
	}
	if cfg.TokenOverlapThreshold != defaults.TokenOverlapThreshold {
		t.Errorf("TokenOverlapThreshold = %v, want %v", cfg.TokenOverlapThreshold, defaults.TokenOverlapThreshold)
	}
	if cfg.DatabasePath != defaults.DatabasePath {
		t.Errorf("DatabasePath = %v, want %v", cfg.DatabasePath, defaults.DatabasePath)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxComments != Default().MaxComments {
		t.Errorf("MaxComments = %v, want default %v", cfg.MaxComments, Default().MaxComments)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redline.yaml")
	content := `
max_comments: 10
token_overlap_threshold: 0.9
log_level: debug
database_path: /tmp/custom.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxComments != 10 {
		t.Errorf("MaxComments = %v, want 10", cfg.MaxComments)
	}
	if cfg.TokenOverlapThreshold != 0.9 {
		t.Errorf("TokenOverlapThreshold = %v, want 0.9", cfg.TokenOverlapThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("DatabasePath = %v, want /tmp/custom.db", cfg.DatabasePath)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxConcurrentTasks != Default().MaxConcurrentTasks {
		t.Errorf("MaxConcurrentTasks = %v, want default %v", cfg.MaxConcurrentTasks, Default().MaxConcurrentTasks)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redline.yaml")
	if err := os.WriteFile(path, []byte("max_comments: [not an int"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed YAML")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redline.yaml")
	if err := os.WriteFile(path, []byte("max_comments: 10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDLINE_MAX_COMMENTS", "5")
	t.Setenv("REDLINE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxComments != 5 {
		t.Errorf("MaxComments = %v, want env override 5", cfg.MaxComments)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestLoadInvalidEnvValue(t *testing.T) {
	t.Setenv("REDLINE_MAX_COMMENTS", "lots")
	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric REDLINE_MAX_COMMENTS")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero max comments", func(c *Config) { c.MaxComments = 0 }, true},
		{"too many comments", func(c *Config) { c.MaxComments = 500 }, true},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentTasks = 0 }, true},
		{"negative rate", func(c *Config) { c.CallsPerSecond = -1 }, true},
		{"threshold above one", func(c *Config) { c.TokenOverlapThreshold = 1.5 }, true},
		{"threshold zero", func(c *Config) { c.TokenOverlapThreshold = 0 }, true},
		{"weights do not sum to one", func(c *Config) { c.SeverityWeight = 0.9 }, true},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
