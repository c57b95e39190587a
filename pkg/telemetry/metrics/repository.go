package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/quota/pkg/limits"
)

// SnapshotSource is what the repository gauges read on every scrape.
// *limits.Repository implements it.
type SnapshotSource interface {
	Snapshot() limits.Snapshot
}

// repositoryCollector exports the repository's current state. It reads a
// snapshot per scrape instead of updating gauges on every acquisition.
type repositoryCollector struct {
	source SnapshotSource
	label  func(string) string

	globalCapacity   *prometheus.Desc
	globalUsed       *prometheus.Desc
	globalAvailable  *prometheus.Desc
	sessionCapacity  *prometheus.Desc
	identityCapacity *prometheus.Desc
	identitiesLive   *prometheus.Desc
	identityUsed     *prometheus.Desc
	identityRefs     *prometheus.Desc
}

func newRepositoryCollector(namespace string, source SnapshotSource, label func(string) string) *repositoryCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &repositoryCollector{
		source:           source,
		label:            label,
		globalCapacity:   desc("global_capacity", "Capacity of the global budget", "limiter"),
		globalUsed:       desc("global_used", "Used count of the global budget", "limiter"),
		globalAvailable:  desc("global_available", "Available headroom of the global budget", "limiter"),
		sessionCapacity:  desc("session_capacity", "Capacity stamped onto new session budgets"),
		identityCapacity: desc("identity_capacity", "Capacity given to new identity budgets"),
		identitiesLive:   desc("identities_live", "Number of live identity budgets"),
		identityUsed:     desc("identity_used", "Used count of identity budgets", "identity"),
		identityRefs:     desc("identity_refs", "Composites referencing identity budgets", "identity"),
	}
}

// Describe implements prometheus.Collector.
func (rc *repositoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- rc.globalCapacity
	ch <- rc.globalUsed
	ch <- rc.globalAvailable
	ch <- rc.sessionCapacity
	ch <- rc.identityCapacity
	ch <- rc.identitiesLive
	ch <- rc.identityUsed
	ch <- rc.identityRefs
}

// Collect implements prometheus.Collector. Identities beyond the label
// limit are summed into OtherLabel.
func (rc *repositoryCollector) Collect(ch chan<- prometheus.Metric) {
	snap := rc.source.Snapshot()

	g := snap.Global
	ch <- prometheus.MustNewConstMetric(rc.globalCapacity, prometheus.GaugeValue, float64(g.Capacity), g.Name)
	ch <- prometheus.MustNewConstMetric(rc.globalUsed, prometheus.GaugeValue, float64(g.Used), g.Name)
	ch <- prometheus.MustNewConstMetric(rc.globalAvailable, prometheus.GaugeValue, float64(g.Available), g.Name)
	ch <- prometheus.MustNewConstMetric(rc.sessionCapacity, prometheus.GaugeValue, float64(snap.SessionCapacity))
	ch <- prometheus.MustNewConstMetric(rc.identityCapacity, prometheus.GaugeValue, float64(snap.IdentityCapacity))
	ch <- prometheus.MustNewConstMetric(rc.identitiesLive, prometheus.GaugeValue, float64(len(snap.Identities)))

	used := make(map[string]float64, len(snap.Identities))
	refs := make(map[string]float64, len(snap.Identities))
	for _, e := range snap.Identities {
		l := rc.label(e.Identity)
		used[l] += float64(e.Budget.Used)
		refs[l] += float64(e.Refs)
	}
	for l, v := range used {
		ch <- prometheus.MustNewConstMetric(rc.identityUsed, prometheus.GaugeValue, v, l)
		ch <- prometheus.MustNewConstMetric(rc.identityRefs, prometheus.GaugeValue, refs[l], l)
	}
}
