// Package config provides centralized configuration for the service.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the service.
type Config struct {
	ListenAddr string
	Database   DatabaseConfig
	Bugzilla   BugzillaConfig
}

// DatabaseConfig holds the relational store connection parameters.
type DatabaseConfig struct {
	Type string // postgres, mysql or sqlite
	DSN  string
}

// BugzillaConfig holds external tracker parameters.
type BugzillaConfig struct {
	RestBase string // e.g. https://bz.apache.org/bugzilla/rest
	ListID   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("listen.addr", "LISTEN_ADDR")
	v.BindEnv("database.type", "DATABASE_TYPE")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("bugzilla.rest.base", "BUGZILLA_REST_BASE")
	v.BindEnv("bugzilla.list.id", "BUGZILLA_LIST_ID")

	v.SetDefault("listen.addr", ":8080")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "bugzilla.db")

	cfg := &Config{
		ListenAddr: v.GetString("listen.addr"),
		Database: DatabaseConfig{
			Type: v.GetString("database.type"),
			DSN:  v.GetString("database.dsn"),
		},
		Bugzilla: BugzillaConfig{
			RestBase: v.GetString("bugzilla.rest.base"),
			ListID:   v.GetString("bugzilla.list.id"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Bugzilla.RestBase == "" {
		missing = append(missing, "BUGZILLA_REST_BASE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
