package composite

import "mercator-hq/quota/pkg/limits/budget"

// Snapshot is a point-in-time view of a composite limiter.
type Snapshot struct {
	// ID is the unique identifier of the composite.
	ID string `json:"id"`

	// Name is the composite label.
	Name string `json:"name"`

	// Held is the amount acquired through the composite and not released.
	Held int64 `json:"held"`

	// Closed reports whether the composite has been closed.
	Closed bool `json:"closed"`

	// Members lists the members in enforcement order.
	Members []budget.Snapshot `json:"members"`
}
