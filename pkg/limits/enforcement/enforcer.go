package enforcement

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Strategy decides how a single budget reacts to a charge.
//
// Implementations must be pure functions of their arguments: the budget
// calls Admit while holding its own lock and applies the returned Decision
// atomically.
type Strategy interface {
	// Mode returns the registered name of the strategy.
	Mode() Mode

	// Admit decides how amount is charged against a budget that currently
	// has used units out of capacity. amount is never negative.
	Admit(used, capacity, amount int64) Decision
}

// NewStrategyFunc builds a Strategy instance.
type NewStrategyFunc func() Strategy

// ErrReservedMode is returned when ModeUnbounded is requested from or
// added to the registry. Unbounded budgets are built directly, never by
// mode name.
var ErrReservedMode = errors.New("strategy mode is reserved for placeholder limiters")

var (
	registryMu sync.RWMutex
	registry   = map[Mode]NewStrategyFunc{
		ModeStrict:   func() Strategy { return Strict{} },
		ModeAdvisory: func() Strategy { return Advisory{} },
	}
)

// Register makes a strategy available by mode name.
// It returns an error if the name is already taken.
func Register(mode Mode, fn NewStrategyFunc) error {
	if mode == "" {
		return fmt.Errorf("strategy mode cannot be empty")
	}
	if mode == ModeUnbounded {
		return fmt.Errorf("strategy %q: %w", mode, ErrReservedMode)
	}
	if fn == nil {
		return fmt.Errorf("strategy %q: constructor cannot be nil", mode)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[mode]; exists {
		return fmt.Errorf("strategy %q already registered", mode)
	}
	registry[mode] = fn
	return nil
}

// New returns the strategy registered under mode.
// An empty mode selects ModeStrict. ModeUnbounded is never returned.
func New(mode Mode) (Strategy, error) {
	if mode == "" {
		mode = ModeStrict
	}
	if mode == ModeUnbounded {
		return nil, fmt.Errorf("strategy %q: %w", mode, ErrReservedMode)
	}

	registryMu.RLock()
	fn, exists := registry[mode]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown enforcement strategy %q (known: %v)", mode, Modes())
	}
	return fn(), nil
}

// Modes returns the registered strategy names in sorted order.
func Modes() []Mode {
	registryMu.RLock()
	defer registryMu.RUnlock()

	modes := make([]Mode, 0, len(registry))
	for m := range registry {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// Strict grants a charge only if it fits entirely within capacity.
type Strict struct{}

// Mode implements Strategy.
func (Strict) Mode() Mode { return ModeStrict }

// Admit implements Strategy.
func (Strict) Admit(used, capacity, amount int64) Decision {
	if amount > capacity-used {
		return Decision{Outcome: Reject}
	}
	return Decision{Outcome: Grant, Charge: amount}
}

// Advisory grants every charge. Whatever does not fit within capacity is
// reported as overdraft instead of being charged to used.
type Advisory struct{}

// Mode implements Strategy.
func (Advisory) Mode() Mode { return ModeAdvisory }

// Admit implements Strategy.
func (Advisory) Admit(used, capacity, amount int64) Decision {
	headroom := capacity - used
	if headroom < 0 {
		headroom = 0
	}
	if amount <= headroom {
		return Decision{Outcome: Grant, Charge: amount}
	}
	return Decision{Outcome: Overdraft, Charge: headroom, Excess: amount - headroom}
}

// Unbounded grants every charge and ignores capacity entirely.
type Unbounded struct{}

// Mode implements Strategy.
func (Unbounded) Mode() Mode { return ModeUnbounded }

// Admit implements Strategy.
func (Unbounded) Admit(used, capacity, amount int64) Decision {
	return Decision{Outcome: Grant, Charge: amount}
}
