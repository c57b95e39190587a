package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention QUOTA_SECTION_FIELD (e.g., QUOTA_ADMIN_LISTEN_ADDRESS), except
// for the quota section itself whose fields are QUOTA_FIELD
// (e.g., QUOTA_GLOBAL_CAPACITY).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed sizes are reported; other malformed values are
// ignored the way unset variables are.
func applyEnvOverrides(cfg *Config) error {
	// Quota overrides
	if val := os.Getenv("QUOTA_GLOBAL_NAME"); val != "" {
		cfg.Quota.GlobalName = val
	}
	for _, o := range []struct {
		env  string
		dest *Size
	}{
		{"QUOTA_GLOBAL_CAPACITY", &cfg.Quota.GlobalCapacity},
		{"QUOTA_SESSION_CAPACITY", &cfg.Quota.SessionCapacity},
		{"QUOTA_IDENTITY_CAPACITY", &cfg.Quota.IdentityCapacity},
	} {
		val := os.Getenv(o.env)
		if val == "" {
			continue
		}
		size, err := ParseSize(val)
		if err != nil {
			return fmt.Errorf("environment variable %s: %w", o.env, err)
		}
		*o.dest = size
	}
	if val := os.Getenv("QUOTA_IDENTITY_PREFIX"); val != "" {
		cfg.Quota.IdentityPrefix = val
	}
	if val := os.Getenv("QUOTA_STRATEGY"); val != "" {
		cfg.Quota.Strategy = val
	}

	// Telemetry overrides
	if val := os.Getenv("QUOTA_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("QUOTA_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("QUOTA_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("QUOTA_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("QUOTA_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	// Admin overrides
	if val := os.Getenv("QUOTA_ADMIN_LISTEN_ADDRESS"); val != "" {
		cfg.Admin.ListenAddress = val
	}
	if val := os.Getenv("QUOTA_ADMIN_DEBUG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Admin.Debug = b
		}
	}

	// Journal overrides
	if val := os.Getenv("QUOTA_JOURNAL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Journal.Enabled = b
		}
	}
	if val := os.Getenv("QUOTA_JOURNAL_DRIVER"); val != "" {
		cfg.Journal.Driver = val
	}
	if val := os.Getenv("QUOTA_JOURNAL_PATH"); val != "" {
		cfg.Journal.Path = val
	}
	if val := os.Getenv("QUOTA_JOURNAL_SCHEDULE"); val != "" {
		cfg.Journal.Schedule = val
	}
	if val := os.Getenv("QUOTA_JOURNAL_RETENTION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Journal.Retention = d
		}
	}
	return nil
}
