package sync

import (
	"os"
	"strconv"
	"time"
)

// Config controls the sync worker.
type Config struct {
	Interval      time.Duration // Time between scheduled runs. Default 24h.
	RunOnStart    bool          // Run a sync immediately on worker start. Default false.
	RetentionDays int           // How long to keep finished runs. Default 30.
	Enabled       bool          // Whether the worker is active. Default true.
}

// DefaultConfig returns the default sync configuration: one run per day.
func DefaultConfig() *Config {
	return &Config{
		Interval:      24 * time.Hour,
		RunOnStart:    false,
		RetentionDays: 30,
		Enabled:       true,
	}
}

// ConfigFromEnv loads config from environment variables:
// BUGZILLA_SYNC_INTERVAL_MINUTES, BUGZILLA_SYNC_RUN_ON_START,
// BUGZILLA_SYNC_RETENTION_DAYS, BUGZILLA_SYNC_ENABLED.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("BUGZILLA_SYNC_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Interval = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("BUGZILLA_SYNC_RUN_ON_START"); v != "" {
		cfg.RunOnStart, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("BUGZILLA_SYNC_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}

	if v := os.Getenv("BUGZILLA_SYNC_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
