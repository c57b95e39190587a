package identity

import "mercator-hq/quota/pkg/limits/budget"

// Entry is a point-in-time view of one identity's shared budget.
type Entry struct {
	// Identity is the opaque identity key.
	Identity string `json:"identity"`

	// Refs is the number of live references.
	Refs int `json:"refs"`

	// Budget is the budget state.
	Budget budget.Snapshot `json:"budget"`
}
