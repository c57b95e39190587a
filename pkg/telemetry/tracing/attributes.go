package tracing

import (
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/quota/pkg/limits"
)

// Attribute keys used on quota spans.
const (
	AttrStrategy         = attribute.Key("quota.strategy")
	AttrGlobalCapacity   = attribute.Key("quota.global.capacity")
	AttrGlobalUsed       = attribute.Key("quota.global.used")
	AttrSessionCapacity  = attribute.Key("quota.session.capacity")
	AttrIdentityCapacity = attribute.Key("quota.identity.capacity")
	AttrIdentities       = attribute.Key("quota.identities.live")
)

// SnapshotAttributes summarizes a repository snapshot. Identity keys are
// left out so spans never carry user identifiers.
func SnapshotAttributes(s limits.Snapshot) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStrategy.String(s.Strategy),
		AttrGlobalCapacity.Int64(s.Global.Capacity),
		AttrGlobalUsed.Int64(s.Global.Used),
		AttrSessionCapacity.Int64(s.SessionCapacity),
		AttrIdentityCapacity.Int64(s.IdentityCapacity),
		AttrIdentities.Int(len(s.Identities)),
	}
}
