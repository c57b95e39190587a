// Package server provides the admin HTTP surface of the quota service.
//
// # Routes
//
//   - /healthz: liveness probe
//   - /readyz: readiness probe backed by a health.Checker
//   - /version: build information
//   - /metrics: Prometheus exposition, when a metrics handler is supplied
//   - /debug/quota: JSON snapshot of the global budget, the session
//     template and every live identity with its reference count. Only
//     mounted when admin.debug is set.
//
// Every request passes through recovery, logging and request id
// middleware. The id is taken from X-Request-ID when the client sends one.
//
// # Usage
//
//	srv := server.New(&cfg.Admin, server.Options{
//	    Source:      repo,
//	    Checker:     checker,
//	    Metrics:     collector.Handler(),
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	    Logger:      logger,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully within
// admin.shutdown_timeout.
package server
