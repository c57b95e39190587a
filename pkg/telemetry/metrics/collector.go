package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/quota/pkg/config"
	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/composite"
)

// OtherLabel replaces label values once the cardinality limit is reached.
const OtherLabel = "other"

// Collector owns the Prometheus registry of the quota service and records
// quota engine events. It implements limits.Observer.
//
// Limiter and identity label values are bounded by a CardinalityLimiter;
// identity budgets are named after caller-supplied keys, so unbounded
// labels would grow without limit.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	quotaMetrics *QuotaMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

var _ limits.Observer = (*Collector)(nil)

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new private registry is used.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	repo := limits.NewRepository(limits.WithObserver(collector))
//	collector.WatchRepository(repo)
//	http.Handle("/metrics", collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.MaxIdentityLabels <= 0 {
		cfg.MaxIdentityLabels = config.DefaultMaxIdentityLabels
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		quotaMetrics:       NewQuotaMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(cfg.MaxIdentityLabels),
	}
}

// WatchRepository registers gauges that read source on every scrape.
// It must be called at most once per collector.
func (c *Collector) WatchRepository(source SnapshotSource) {
	c.registry.MustRegister(newRepositoryCollector(c.config.Namespace, source, c.label))
}

// label bounds a limiter or identity label value.
func (c *Collector) label(value string) string {
	if c.cardinalityLimiter.Allow(value) {
		return value
	}
	return OtherLabel
}

// ObserveAcquire implements limits.Observer.
func (c *Collector) ObserveAcquire(_ *composite.Limiter, amount int64, err error) {
	if !c.config.IsEnabled() {
		return
	}

	var qerr *budget.QuotaError
	switch {
	case err == nil:
		c.quotaMetrics.RecordAcquire("granted", amount)
	case errors.As(err, &qerr):
		c.quotaMetrics.RecordAcquire("rejected", amount)
		c.quotaMetrics.RecordRejection(c.label(qerr.Limiter))
	default:
		c.quotaMetrics.RecordAcquire("error", amount)
	}
}

// ObserveRelease implements limits.Observer.
func (c *Collector) ObserveRelease(_ *composite.Limiter, amount int64) {
	if !c.config.IsEnabled() {
		return
	}
	c.quotaMetrics.RecordRelease(amount)
}

// ObserveOverRelease implements limits.Observer.
func (c *Collector) ObserveOverRelease(limiter string, _, excess int64) {
	if !c.config.IsEnabled() {
		return
	}
	c.quotaMetrics.RecordOverRelease(c.label(limiter), excess)
}

// ObserveIdentity implements limits.Observer.
func (c *Collector) ObserveIdentity(_ string, created bool) {
	if !c.config.IsEnabled() {
		return
	}
	event := "reclaimed"
	if created {
		event = "created"
	}
	c.quotaMetrics.RecordIdentityEvent(event)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// was seen before or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
