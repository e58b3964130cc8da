package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Media    MediaConfig    `toml:"media"`
	Playback PlaybackConfig `toml:"playback"`
	Export   ExportConfig   `toml:"export"`
	Logging  LoggingConfig  `toml:"logging"`
	Share    ShareConfig    `toml:"share"`
}

// ServerConfig contains the local API server configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// DatabaseConfig contains the project store configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// MediaConfig contains media library configuration
type MediaConfig struct {
	LibraryPath     string `toml:"library_path"`
	WatchForChanges bool   `toml:"watch_for_changes"`
	ScanOnStartup   bool   `toml:"scan_on_startup"`
	// DropSuppressMs suppresses duplicate watcher create events for the same
	// path inside this window. Empirically tuned; adjust per platform.
	DropSuppressMs int `toml:"drop_suppress_ms"`
}

// PlaybackConfig contains playback synchronization tuning
type PlaybackConfig struct {
	// DriftToleranceMs is the band a composite source may drift from the
	// shared clock before being re-seeked. Empirically tuned; adjust per
	// target hardware.
	DriftToleranceMs  int `toml:"drift_tolerance_ms"`
	ProbeCacheMinutes int `toml:"probe_cache_minutes"`
}

// ExportConfig contains encode/export configuration
type ExportConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	OutputDir   string `toml:"output_dir"`
	Preset      string `toml:"resolution_preset"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	RequestLogging bool   `toml:"request_logging"`
}

// ShareConfig contains remote preview tunnel configuration
type ShareConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
	AccessKey string `toml:"access_key"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "7420",
			Host:        "127.0.0.1",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:           "./framecut.db",
			MaxConnections: 5,
		},
		Media: MediaConfig{
			LibraryPath:     "./media",
			WatchForChanges: true,
			ScanOnStartup:   true,
			DropSuppressMs:  1000,
		},
		Playback: PlaybackConfig{
			DriftToleranceMs:  50,
			ProbeCacheMinutes: 15,
		},
		Export: ExportConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			OutputDir:   "./exports",
			Preset:      "1080p",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: false,
		},
		Share: ShareConfig{
			Enabled:   false,
			AuthToken: "",
			Domain:    "",
			AccessKey: "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with
// defaults when missing.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Framecut Engine Configuration
# This file contains all configuration options for the framecut timeline
# engine. Edit the values below to customize your setup.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Media.LibraryPath == "" {
		return fmt.Errorf("media library path cannot be empty")
	}
	if c.Media.DropSuppressMs < 0 {
		return fmt.Errorf("drop suppression window must not be negative")
	}

	if c.Playback.DriftToleranceMs < 1 {
		return fmt.Errorf("drift tolerance must be at least 1ms")
	}

	if c.Export.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg path cannot be empty")
	}
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export output directory cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}
