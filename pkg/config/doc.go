// Package config provides configuration management for the quota service.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("quota.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("quota.yaml")
//
// # Environment Variable Overrides
//
//   - QUOTA_GLOBAL_CAPACITY overrides quota.global_capacity
//   - QUOTA_SESSION_CAPACITY overrides quota.session_capacity
//   - QUOTA_IDENTITY_CAPACITY overrides quota.identity_capacity
//   - QUOTA_STRATEGY overrides quota.strategy
//   - QUOTA_LOG_LEVEL overrides telemetry.logging.level
//   - QUOTA_ADMIN_LISTEN_ADDRESS overrides admin.listen_address
//   - QUOTA_JOURNAL_ENABLED overrides journal.enabled
//
// Environment variables always take precedence over file-based configuration.
//
// # Sizes
//
// Capacities are plain integers or human-readable sizes: "512MiB", "4 GB",
// "1.5GiB".
//
// # Hot Reload
//
// A Watcher re-reads the file after it changes and passes the new
// configuration to a callback. Invalid files are logged and ignored.
//
// # Example Configuration
//
//	quota:
//	  global_capacity: 64GiB
//	  session_capacity: 1GiB
//	  identity_capacity: 8GiB
//	  strategy: strict
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	    redact_identities: true
//
//	admin:
//	  listen_address: "127.0.0.1:9090"
//
//	journal:
//	  enabled: true
//	  path: data/quota-journal.db
//	  schedule: "@every 1m"
//	  retention: 168h
package config
