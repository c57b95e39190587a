package enforcement

// Mode names an admission strategy.
type Mode string

const (
	// ModeStrict rejects an acquisition outright when the budget lacks headroom.
	ModeStrict Mode = "strict"

	// ModeAdvisory always grants an acquisition and records the part that
	// does not fit as overdraft.
	ModeAdvisory Mode = "advisory"

	// ModeUnbounded always grants an acquisition and never records overdraft.
	// It backs placeholder limiters only: it is not in the registry, so New
	// and Register reject it.
	ModeUnbounded Mode = "unbounded"
)

// Outcome is the verdict of a strategy for a single charge.
type Outcome int

const (
	// Grant means the whole amount fits within capacity.
	Grant Outcome = iota

	// Overdraft means the amount is granted but exceeds capacity by Decision.Excess.
	Overdraft

	// Reject means the amount must not be charged.
	Reject
)

// String returns the outcome as used in metric labels.
func (o Outcome) String() string {
	switch o {
	case Grant:
		return "granted"
	case Overdraft:
		return "overdraft"
	case Reject:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision contains the verdict of Strategy.Admit.
type Decision struct {
	// Outcome is the verdict.
	Outcome Outcome

	// Charge is the amount to add to the budget's used counter.
	// Only ModeUnbounded may take used above capacity.
	Charge int64

	// Excess is the amount to add to the budget's overdraft counter.
	Excess int64
}

// Allowed reports whether the charge may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome != Reject
}
