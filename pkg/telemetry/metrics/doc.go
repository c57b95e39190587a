// Package metrics exports quota engine metrics to Prometheus.
//
// The Collector is a limits.Observer: install it on the repository and it
// counts acquisitions, rejections, releases, over-releases and identity
// budget churn. WatchRepository adds gauges for the global budget and live
// identity budgets, read from a repository snapshot on every scrape.
//
// Every metric lives in the collector's own registry, never the global
// default one, so tests and multiple collectors do not collide.
package metrics
