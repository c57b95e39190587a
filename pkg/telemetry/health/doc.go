// Package health provides liveness and readiness probes for the quota
// service.
//
// Liveness answers as long as the process can serve HTTP. Readiness runs
// every registered CheckFunc concurrently, each bounded by the checker's
// timeout, and reports 503 when any of them fails.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("journal", j.Ping)
//	mux.Handle("/healthz", checker.LivenessHandler())
//	mux.Handle("/readyz", checker.ReadinessHandler())
package health
