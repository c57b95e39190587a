package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/quota/pkg/config"
)

// QuotaMetrics tracks quota engine events.
//
// Metrics:
//   - quota_acquisitions_total: Composite acquisitions by result
//   - quota_acquired_amount_total: Amount granted by composites
//   - quota_released_amount_total: Amount released through composites
//   - quota_rejections_total: Rejections by the limiter that refused
//   - quota_over_releases_total: Over-releases by limiter
//   - quota_over_released_amount_total: Amount clamped away by over-releases
//   - quota_identity_events_total: Identity budgets created and reclaimed
type QuotaMetrics struct {
	acquisitionsTotal   *prometheus.CounterVec
	acquiredAmount      prometheus.Counter
	releasedAmount      prometheus.Counter
	rejectionsTotal     *prometheus.CounterVec
	overReleasesTotal   *prometheus.CounterVec
	overReleasedAmount  prometheus.Counter
	identityEventsTotal *prometheus.CounterVec
}

// NewQuotaMetrics creates and registers quota metrics with the provided registry.
func NewQuotaMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *QuotaMetrics {
	qm := &QuotaMetrics{
		acquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "acquisitions_total",
				Help:      "Total number of composite acquisitions by result",
			},
			[]string{"result"},
		),

		acquiredAmount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "acquired_amount_total",
				Help:      "Total amount granted through composite limiters",
			},
		),

		releasedAmount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "released_amount_total",
				Help:      "Total amount released through composite limiters",
			},
		),

		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rejections_total",
				Help:      "Total number of rejections by the limiter that refused",
			},
			[]string{"limiter"},
		),

		overReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "over_releases_total",
				Help:      "Total number of releases larger than the budget's usage",
			},
			[]string{"limiter"},
		),

		overReleasedAmount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "over_released_amount_total",
				Help:      "Total amount clamped away by over-releases",
			},
		),

		identityEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "identity_events_total",
				Help:      "Total number of identity budgets created and reclaimed",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(
		qm.acquisitionsTotal,
		qm.acquiredAmount,
		qm.releasedAmount,
		qm.rejectionsTotal,
		qm.overReleasesTotal,
		qm.overReleasedAmount,
		qm.identityEventsTotal,
	)
	return qm
}

// RecordAcquire records one composite acquisition.
func (qm *QuotaMetrics) RecordAcquire(result string, amount int64) {
	qm.acquisitionsTotal.WithLabelValues(result).Inc()
	if result == "granted" {
		qm.acquiredAmount.Add(float64(amount))
	}
}

// RecordRelease records a composite release.
func (qm *QuotaMetrics) RecordRelease(amount int64) {
	qm.releasedAmount.Add(float64(amount))
}

// RecordRejection records which limiter refused an acquisition.
func (qm *QuotaMetrics) RecordRejection(limiter string) {
	qm.rejectionsTotal.WithLabelValues(limiter).Inc()
}

// RecordOverRelease records an over-release.
func (qm *QuotaMetrics) RecordOverRelease(limiter string, excess int64) {
	qm.overReleasesTotal.WithLabelValues(limiter).Inc()
	qm.overReleasedAmount.Add(float64(excess))
}

// RecordIdentityEvent records an identity budget being created or reclaimed.
func (qm *QuotaMetrics) RecordIdentityEvent(event string) {
	qm.identityEventsTotal.WithLabelValues(event).Inc()
}
