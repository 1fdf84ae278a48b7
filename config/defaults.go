package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "offramp.db")

	// Scheduler defaults
	v.SetDefault("scheduler.interval_seconds", 60)
	v.SetDefault("scheduler.batch_size", 5)
	v.SetDefault("scheduler.stale_after_seconds", 3600)

	// Directory API defaults (Microsoft Graph shape)
	v.SetDefault("directory.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("directory.authority", "https://login.microsoftonline.com")
	v.SetDefault("directory.scope", "https://graph.microsoft.com/.default")
	v.SetDefault("directory.timeout_seconds", 30)
	v.SetDefault("directory.requests_per_second", 10)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Credential encryption key - env only, never persisted to config files
	v.BindEnv("vault.key", "OFFRAMP_VAULT_KEY")

	// Database path
	v.BindEnv("database.path", "OFFRAMP_DATABASE_PATH")
}
