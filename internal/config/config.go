// Package config provides configuration for the template pipeline using
// Viper for flexible loading from YAML files and environment variables.
//
// Environment overrides use the TEMPLATEGUARD_ prefix with underscores for
// nesting (TEMPLATEGUARD_CACHE_DIR, TEMPLATEGUARD_LOGGING_VERBOSE). All
// values are consumed once at runtime construction; there is no runtime
// reconfiguration path.
package config

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"templateguard/internal/errors"
)

// Config is the full configuration surface.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// CacheConfig controls both cache tiers and their maintenance.
type CacheConfig struct {
	// Enabled toggles caching entirely. When false the pipeline recompiles
	// on every fetch and touches no storage.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Dir is the persistent tier directory. Empty disables the disk tier
	// while keeping the memory tier.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// TTL expires memory-tier entries; zero disables expiry.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// MaxMemoryBytes bounds the memory tier by stored artifact size.
	MaxMemoryBytes int64 `yaml:"max_memory_bytes" mapstructure:"max_memory_bytes"`
	// Retention is how long an untouched disk entry survives before the
	// janitor removes it as orphaned. Zero disables the janitor.
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
	// CleanupSchedule is the janitor's cron schedule.
	CleanupSchedule string `yaml:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	// WatchDir enables the fsnotify watcher that evicts memory entries when
	// another process rewrites the shared disk tier.
	WatchDir bool `yaml:"watch_dir" mapstructure:"watch_dir"`
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	// Verbose lowers the log level to debug.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:         true,
			Dir:             "",
			TTL:             time.Hour,
			MaxMemoryBytes:  8 << 20,
			Retention:       7 * 24 * time.Hour,
			CleanupSchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Verbose: false,
			Format:  "text",
		},
	}
}

// Load reads configuration from the optional YAML file at path and from the
// environment, layered over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.max_memory_bytes", defaults.Cache.MaxMemoryBytes)
	v.SetDefault("cache.retention", defaults.Cache.Retention)
	v.SetDefault("cache.cleanup_schedule", defaults.Cache.CleanupSchedule)
	v.SetDefault("cache.watch_dir", false)
	v.SetDefault("logging.verbose", defaults.Logging.Verbose)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetEnvPrefix("TEMPLATEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("CONFIG_READ", "reading config file: "+err.Error())
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError("CONFIG_DECODE", "decoding config: "+err.Error())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return errors.NewConfigError("CONFIG_LOG_FORMAT", `logging.format must be "text" or "json"`)
	}

	if c.Cache.MaxMemoryBytes < 0 {
		return errors.NewConfigError("CONFIG_CACHE_SIZE", "cache.max_memory_bytes must not be negative")
	}

	if c.Cache.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.CleanupSchedule); err != nil {
			return errors.NewConfigError("CONFIG_CLEANUP_SCHEDULE", "cache.cleanup_schedule is not a valid cron expression: "+err.Error())
		}
	}

	return nil
}
