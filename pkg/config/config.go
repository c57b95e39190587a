package config

import "time"

// Config is the root configuration structure for the quota service.
type Config struct {
	// Quota configures the capacities and enforcement strategy of the
	// quota engine.
	Quota QuotaConfig `yaml:"quota"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Admin configures the admin HTTP server.
	Admin AdminConfig `yaml:"admin"`

	// Journal configures the SQLite usage journal.
	Journal JournalConfig `yaml:"journal"`

	// Reload configures hot reload of the configuration file.
	Reload ReloadConfig `yaml:"reload"`
}

// QuotaConfig contains the capacities of the three quota levels.
// Capacities accept plain integers or human-readable sizes such as
// "512MiB" or "4 GB".
type QuotaConfig struct {
	// GlobalName names the process-wide budget.
	// Default: "global"
	GlobalName string `yaml:"global_name"`

	// GlobalCapacity is the capacity shared by every session.
	GlobalCapacity Size `yaml:"global_capacity"`

	// SessionCapacity is stamped onto every new session budget.
	SessionCapacity Size `yaml:"session_capacity"`

	// IdentityCapacity is given to an identity budget when it is created.
	// Live identity budgets keep the capacity they were created with.
	IdentityCapacity Size `yaml:"identity_capacity"`

	// IdentityPrefix is prepended to an identity key to name its budget.
	// It is read once at startup.
	// Default: "identity_"
	IdentityPrefix string `yaml:"identity_prefix"`

	// Strategy selects how budgets answer acquisitions they cannot cover.
	// Options: "strict", "advisory"
	// Default: "strict"
	Strategy string `yaml:"strategy"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OpenTelemetry tracing of admin requests, journal
// snapshots, configuration reloads and simulations.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler selects which traces are recorded.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept by the "ratio" sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "quota"
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactIdentities masks identity keys in log entries.
	// Default: false
	RedactIdentities bool `yaml:"redact_identities"`

	// OverReleaseInterval is the minimum time between two over-release
	// warnings. Suppressed warnings are still counted in metrics.
	// Default: 10s
	OverReleaseInterval time.Duration `yaml:"over_release_interval"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exported.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "quota"
	Namespace string `yaml:"namespace"`

	// MaxIdentityLabels bounds the number of distinct identity label
	// values. Further identities are reported as "other".
	// Default: 1000
	MaxIdentityLabels int `yaml:"max_identity_labels"`
}

// IsEnabled reports whether metrics are enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	// ListenAddress is the address and port for the admin server.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Debug enables the /debug/quota snapshot endpoint.
	// Default: false
	Debug bool `yaml:"debug"`
}

// JournalConfig configures the SQLite usage journal.
type JournalConfig struct {
	// Enabled turns on periodic usage snapshots.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Driver selects the SQLite driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file.
	// Default: "data/quota-journal.db"
	Path string `yaml:"path"`

	// Schedule is the cron expression for snapshots.
	// Default: "@every 1m"
	Schedule string `yaml:"schedule"`

	// Retention is how long snapshots are kept. A negative value keeps
	// everything.
	// Default: 168h
	Retention time.Duration `yaml:"retention"`

	// BusyTimeout is how long to wait for database locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ReloadConfig configures hot reload of the configuration file.
type ReloadConfig struct {
	// Watch re-applies quota settings when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period after a change before reloading.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`
}
