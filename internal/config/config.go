package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/artemis/fleetmigrate/internal/observability"
)

// Config holds process-wide application configuration: server addresses,
// SSH pool tuning, transfer defaults, and logging. The fleet itself (the
// set of migratable hosts) is loaded separately via LoadHostRegistry,
// since it is operator-managed inventory rather than process tuning.
type Config struct {
	// Server configuration
	HTTPAddr string `json:"http_addr"`

	// HostsFile points at the YAML fleet registry.
	HostsFile string `json:"hosts_file"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// Data directory for backup manifests, audit logs, and state.
	DataDir string `json:"data_dir"`

	// SSH session pool tuning
	MaxConcurrentPerHost int           `json:"max_concurrent_per_host"`
	MaxIdle              time.Duration `json:"max_idle"`
	MaxLifetime          time.Duration `json:"max_lifetime"`
	RateLimitPerMinute   int           `json:"rate_limit_per_minute"`
	RateLimitPerHour     int           `json:"rate_limit_per_hour"`

	// Remote executor timeouts, per command class
	ShortTimeout   time.Duration `json:"short_timeout"`
	DockerTimeout  time.Duration `json:"docker_timeout"`
	GeneralTimeout time.Duration `json:"general_timeout"`
	ArchiveTimeout time.Duration `json:"archive_timeout"`
	RsyncTimeout   time.Duration `json:"rsync_timeout"`
	BackupTimeout  time.Duration `json:"backup_timeout"`

	// Transfer configuration
	CompressionLevel int `json:"compression_level"`

	mu sync.RWMutex
}

// DefaultConfig returns a configuration with the pool, timeout, and
// compression defaults used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:             ":8080",
		HostsFile:            "hosts.yaml",
		LogLevel:             "info",
		DataDir:              "",
		MaxConcurrentPerHost: 5,
		MaxIdle:              5 * time.Minute,
		MaxLifetime:          time.Hour,
		RateLimitPerMinute:   60,
		RateLimitPerHour:     600,
		ShortTimeout:         30 * time.Second,
		DockerTimeout:        60 * time.Second,
		GeneralTimeout:       120 * time.Second,
		ArchiveTimeout:       300 * time.Second,
		RsyncTimeout:         600 * time.Second,
		BackupTimeout:        300 * time.Second,
		CompressionLevel:     6,
	}
}

// LoadConfig loads configuration from a file or returns default config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, ".fleetmigrate", "config.json")
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Save persists the configuration via a write-then-rename so a crash
// mid-write can never leave a truncated config file behind.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".fleetmigrate", "config.json")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	return nil
}

// Redact returns a copy of the config safe for logging.
func (c *Config) Redact() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"http_addr":               c.HTTPAddr,
		"hosts_file":              observability.RedactString(c.HostsFile),
		"log_level":               c.LogLevel,
		"max_concurrent_per_host": c.MaxConcurrentPerHost,
		"rate_limit_per_minute":   c.RateLimitPerMinute,
		"rate_limit_per_hour":     c.RateLimitPerHour,
		"compression_level":       c.CompressionLevel,
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaults.HTTPAddr
	}
	if cfg.HostsFile == "" {
		cfg.HostsFile = defaults.HostsFile
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.MaxConcurrentPerHost == 0 {
		cfg.MaxConcurrentPerHost = defaults.MaxConcurrentPerHost
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = defaults.MaxIdle
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = defaults.MaxLifetime
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = defaults.RateLimitPerMinute
	}
	if cfg.RateLimitPerHour == 0 {
		cfg.RateLimitPerHour = defaults.RateLimitPerHour
	}
	if cfg.ShortTimeout == 0 {
		cfg.ShortTimeout = defaults.ShortTimeout
	}
	if cfg.DockerTimeout == 0 {
		cfg.DockerTimeout = defaults.DockerTimeout
	}
	if cfg.GeneralTimeout == 0 {
		cfg.GeneralTimeout = defaults.GeneralTimeout
	}
	if cfg.ArchiveTimeout == 0 {
		cfg.ArchiveTimeout = defaults.ArchiveTimeout
	}
	if cfg.RsyncTimeout == 0 {
		cfg.RsyncTimeout = defaults.RsyncTimeout
	}
	if cfg.BackupTimeout == 0 {
		cfg.BackupTimeout = defaults.BackupTimeout
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = defaults.CompressionLevel
	}
}
