package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() does not validate: %v", err)
	}
	if got := cfg.GetAddress(); got != "127.0.0.1:7420" {
		t.Errorf("GetAddress() = %s, want 127.0.0.1:7420", got)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "empty host", mutate: func(c *Config) { c.Server.Host = "" }},
		{name: "empty database path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "zero max connections", mutate: func(c *Config) { c.Database.MaxConnections = 0 }},
		{name: "empty library path", mutate: func(c *Config) { c.Media.LibraryPath = "" }},
		{name: "negative drop suppression", mutate: func(c *Config) { c.Media.DropSuppressMs = -1 }},
		{name: "zero drift tolerance", mutate: func(c *Config) { c.Playback.DriftToleranceMs = 0 }},
		{name: "empty ffmpeg path", mutate: func(c *Config) { c.Export.FFmpegPath = "" }},
		{name: "empty output dir", mutate: func(c *Config) { c.Export.OutputDir = "" }},
		{name: "bogus log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
		{name: "bogus log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() accepted invalid config")
			}
		})
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != "7420" {
		t.Errorf("created config port = %s, want default", cfg.Server.Port)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("default config file not written: %v", err)
	}

	// Loading again reads the file it just wrote.
	again, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("second LoadConfig() error: %v", err)
	}
	if again.Playback.DriftToleranceMs != cfg.Playback.DriftToleranceMs {
		t.Errorf("round-tripped config differs")
	}
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[server]
port = "9000"
host = "0.0.0.0"

[playback]
drift_tolerance_ms = 120

[media]
library_path = "/srv/media"
drop_suppress_ms = 2500
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.Playback.DriftToleranceMs != 120 {
		t.Errorf("drift tolerance = %d, want 120", cfg.Playback.DriftToleranceMs)
	}
	if cfg.Media.DropSuppressMs != 2500 {
		t.Errorf("drop suppression = %d, want 2500", cfg.Media.DropSuppressMs)
	}
	// Untouched sections keep defaults.
	if cfg.Export.Preset != "1080p" {
		t.Errorf("untouched export preset = %s, want 1080p", cfg.Export.Preset)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[logging]
level = "shout"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Errorf("LoadConfig() accepted invalid log level")
	}
}
