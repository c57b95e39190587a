package budget

// Snapshot is a point-in-time copy of a budget, used for introspection,
// metrics export and the usage journal.
type Snapshot struct {
	// Name is the budget label.
	Name string `json:"name"`

	// Capacity is the fixed capacity.
	Capacity int64 `json:"capacity"`

	// Used is the amount charged.
	Used int64 `json:"used"`

	// Available is Capacity - Used, never negative.
	Available int64 `json:"available"`

	// Overdraft is the amount granted beyond capacity (advisory strategy only).
	Overdraft int64 `json:"overdraft,omitempty"`

	// Strategy is the admission strategy name.
	Strategy string `json:"strategy"`
}

// Utilization returns Used/Capacity in the range [0, 1]. A zero-capacity
// budget reports 0 while nothing is used and 1 otherwise.
func (s Snapshot) Utilization() float64 {
	return utilization(s.Used, s.Capacity)
}

// Utilization returns the used fraction of l in the range [0, 1].
func Utilization(l Limiter) float64 {
	return utilization(l.Used(), l.Capacity())
}

func utilization(used, capacity int64) float64 {
	if capacity <= 0 {
		if used > 0 {
			return 1
		}
		return 0
	}
	u := float64(used) / float64(capacity)
	if u > 1 {
		return 1
	}
	return u
}
