package config

import "time"

// Default values for configuration fields.
const (
	// Quota defaults
	DefaultGlobalName     = "global"
	DefaultIdentityPrefix = "identity_"
	DefaultStrategy       = "strict"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultOverReleaseInterval = 10 * time.Second
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsNamespace    = "quota"
	DefaultMaxIdentityLabels   = 1000
	DefaultTracingExporter     = "otlp"
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingTimeout      = 10 * time.Second
	DefaultTracingSampler      = "ratio"
	DefaultTracingSampleRatio  = 0.1
	DefaultTracingServiceName  = "quota"

	// Admin defaults
	DefaultAdminListenAddress = "127.0.0.1:9090"
	DefaultAdminReadTimeout   = 10 * time.Second
	DefaultAdminWriteTimeout  = 10 * time.Second
	DefaultShutdownTimeout    = 15 * time.Second

	// Journal defaults
	DefaultJournalDriver      = "sqlite"
	DefaultJournalPath        = "data/quota-journal.db"
	DefaultJournalSchedule    = "@every 1m"
	DefaultJournalRetention   = 7 * 24 * time.Hour
	DefaultJournalBusyTimeout = 5 * time.Second

	// Reload defaults
	DefaultReloadDebounce = 250 * time.Millisecond
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Quota defaults
	if cfg.Quota.GlobalName == "" {
		cfg.Quota.GlobalName = DefaultGlobalName
	}
	if cfg.Quota.IdentityPrefix == "" {
		cfg.Quota.IdentityPrefix = DefaultIdentityPrefix
	}
	if cfg.Quota.Strategy == "" {
		cfg.Quota.Strategy = DefaultStrategy
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.OverReleaseInterval == 0 {
		cfg.Telemetry.Logging.OverReleaseInterval = DefaultOverReleaseInterval
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.MaxIdentityLabels == 0 {
		cfg.Telemetry.Metrics.MaxIdentityLabels = DefaultMaxIdentityLabels
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
		if cfg.Telemetry.Tracing.SampleRatio == 0 {
			cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
		}
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}

	// Admin defaults
	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = DefaultAdminListenAddress
	}
	if cfg.Admin.ReadTimeout == 0 {
		cfg.Admin.ReadTimeout = DefaultAdminReadTimeout
	}
	if cfg.Admin.WriteTimeout == 0 {
		cfg.Admin.WriteTimeout = DefaultAdminWriteTimeout
	}
	if cfg.Admin.ShutdownTimeout == 0 {
		cfg.Admin.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Journal defaults
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = DefaultJournalDriver
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.Schedule == "" {
		cfg.Journal.Schedule = DefaultJournalSchedule
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = DefaultJournalRetention
	}
	if cfg.Journal.BusyTimeout == 0 {
		cfg.Journal.BusyTimeout = DefaultJournalBusyTimeout
	}

	// Reload defaults
	if cfg.Reload.Debounce == 0 {
		cfg.Reload.Debounce = DefaultReloadDebounce
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
