// Package config loads Offramp configuration from TOML files and
// OFFRAMP_* environment variables via Viper.
package config

import (
	"time"
)

// Config represents the core Offramp configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Vault     VaultConfig     `mapstructure:"vault"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the due-record scanner
type SchedulerConfig struct {
	// How often the scanner checks for due records (default: 60)
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// Maximum records processed per scan (default: 5)
	BatchSize int `mapstructure:"batch_size"`
	// Records stuck in-progress longer than this are reaped as failed (default: 3600)
	StaleAfterSeconds int `mapstructure:"stale_after_seconds"`
}

// DirectoryConfig configures the external directory API and its token endpoint
type DirectoryConfig struct {
	// Base URL of the directory REST API
	BaseURL string `mapstructure:"base_url"`
	// Base URL of the identity provider's token endpoint ({tenant} is substituted)
	Authority string `mapstructure:"authority"`
	// OAuth scope requested in the client-credentials exchange
	Scope string `mapstructure:"scope"`
	// Request timeout in seconds (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Outbound requests per second against the directory API (default: 10)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// VaultConfig configures credential encryption at rest
type VaultConfig struct {
	// Hex-encoded 32-byte AES key. Bound to OFFRAMP_VAULT_KEY; never
	// written to config files.
	Key string `mapstructure:"key"`
}

// Interval returns the scanner interval as a duration
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// StaleAfter returns the in-progress reap threshold as a duration
func (c SchedulerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// Timeout returns the directory request timeout as a duration
func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
