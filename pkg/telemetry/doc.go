// Package telemetry groups the observability packages of the quota service.
//
// # Components
//
//   - logging: slog setup and the quota event observer, with identity redaction
//   - metrics: Prometheus collectors for acquisitions, rejections and budget usage
//   - tracing: OpenTelemetry spans for admin requests, reloads and journal runs
//   - health: liveness and readiness checks served on the admin server
//
// # Usage
//
//	logger, _ := logging.New(logging.Config{Level: "info", Format: "json"})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	repo := limits.NewRepository(limits.WithObserver(limits.Observers{
//	    logging.NewObserver(logger, time.Minute),
//	    collector,
//	}))
//	collector.WatchRepository(repo)
//
// Identity keys are redacted from logs by default, including inside the
// names of identity budgets. Metric label values built from budget names
// are capped by a cardinality limit.
package telemetry
