// Quota runs the hierarchical quota engine as a standalone service.
//
// The service enforces a process-wide global budget, per-session budgets
// and budgets shared by every session of the same identity. It exposes an
// admin HTTP surface with probes, Prometheus metrics and a debug snapshot,
// and can journal usage snapshots to SQLite.
//
// Usage:
//
//	# Start the service
//	quota run --config quota.yaml
//
//	# Check a configuration file
//	quota validate --config quota.yaml
//
//	# Exercise a configuration with concurrent synthetic sessions
//	quota simulate --sessions 5000 --identities 20
//
//	# Show version information
//	quota version
package main

func main() {
	Execute()
}
