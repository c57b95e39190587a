package budget

import (
	"sync"

	"mercator-hq/quota/pkg/limits/enforcement"
)

// Limiter is a single quota scope: a fixed capacity with a mutable used count.
type Limiter interface {
	// Name returns the label of the limiter. Names are not required to be unique.
	Name() string

	// Capacity returns the fixed capacity set at construction.
	Capacity() int64

	// Used returns the amount currently charged.
	Used() int64

	// Available returns Capacity() - Used().
	Available() int64

	// Acquire charges amount against the limiter. On rejection the limiter
	// is left untouched and the error wraps ErrQuotaExceeded.
	Acquire(amount int64) error

	// Release returns amount to the limiter. Releasing more than is used
	// clamps used at zero.
	Release(amount int64) error
}

// OverReleaseFunc is called when a release returns more than was charged.
// excess is the part of the release that had nothing to pay back.
type OverReleaseFunc func(name string, requested, excess int64)

// Option configures a Budget.
type Option func(*Budget)

// WithStrategy sets the admission strategy. The default is enforcement.Strict.
func WithStrategy(s enforcement.Strategy) Option {
	return func(b *Budget) {
		if s != nil {
			b.strategy = s
		}
	}
}

// WithOverReleaseFunc installs a hook that reports over-releases.
func WithOverReleaseFunc(fn OverReleaseFunc) Option {
	return func(b *Budget) {
		b.onOverRelease = fn
	}
}

// Budget is the mutex-guarded Limiter implementation.
//
// Every read-modify-write runs under the budget's own lock so two concurrent
// acquisitions never both observe stale headroom. Budgets shared by many
// composites (the global budget, identity budgets) are the main point of
// contention, so the critical section only does arithmetic.
type Budget struct {
	name          string
	capacity      int64
	strategy      enforcement.Strategy
	onOverRelease OverReleaseFunc

	mu        sync.Mutex
	used      int64
	overdraft int64
}

// New creates a budget with the given capacity. A negative capacity is
// treated as zero.
//
// Example:
//
//	global := budget.New("global", 512<<20)
//	if err := global.Acquire(4096); err != nil {
//	    // errors.Is(err, budget.ErrQuotaExceeded)
//	}
//	defer global.Release(4096)
func New(name string, capacity int64, opts ...Option) *Budget {
	if capacity < 0 {
		capacity = 0
	}
	b := &Budget{
		name:     name,
		capacity: capacity,
		strategy: enforcement.Strict{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewUnbounded returns a budget that never rejects an acquisition.
//
// It is a placeholder rather than a real budget: placeholder is reported as
// the capacity, used is still tracked, and Available is clamped at zero once
// used passes the placeholder.
func NewUnbounded(name string, placeholder int64) *Budget {
	return New(name, placeholder, WithStrategy(enforcement.Unbounded{}))
}

// Name implements Limiter.
func (b *Budget) Name() string {
	return b.name
}

// Capacity implements Limiter.
func (b *Budget) Capacity() int64 {
	return b.capacity
}

// Used implements Limiter.
func (b *Budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Available implements Limiter.
func (b *Budget) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.availableLocked()
}

// Overdraft returns the amount granted beyond capacity by an advisory strategy
// that has not been released yet.
func (b *Budget) Overdraft() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overdraft
}

// Strategy returns the admission strategy of the budget.
func (b *Budget) Strategy() enforcement.Strategy {
	return b.strategy
}

// Acquire implements Limiter.
func (b *Budget) Acquire(amount int64) error {
	_, err := b.Charge(amount)
	return err
}

// Charge is Acquire returning the strategy's decision, so callers can tell a
// plain grant from an overdraft.
func (b *Budget) Charge(amount int64) (enforcement.Decision, error) {
	if amount < 0 {
		return enforcement.Decision{Outcome: enforcement.Reject}, invalidAmount("acquire", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.strategy.Admit(b.used, b.capacity, amount)
	if !d.Allowed() {
		return d, &QuotaError{
			Limiter:   b.name,
			Capacity:  b.capacity,
			Used:      b.used,
			Requested: amount,
		}
	}

	b.used += d.Charge
	b.overdraft += d.Excess
	return d, nil
}

// Release implements Limiter. Overdraft is paid back before used.
func (b *Budget) Release(amount int64) error {
	if amount < 0 {
		return invalidAmount("release", amount)
	}

	b.mu.Lock()
	rest := amount
	if b.overdraft > 0 {
		paid := min(rest, b.overdraft)
		b.overdraft -= paid
		rest -= paid
	}
	released := min(rest, b.used)
	b.used -= released
	excess := rest - released
	b.mu.Unlock()

	if excess > 0 && b.onOverRelease != nil {
		b.onOverRelease(b.name, amount, excess)
	}
	return nil
}

// Reset drops all usage and overdraft.
// This should only be used in testing or error recovery scenarios.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
	b.overdraft = 0
}

// Snapshot returns a consistent copy of the budget's state.
func (b *Budget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:      b.name,
		Capacity:  b.capacity,
		Used:      b.used,
		Available: b.availableLocked(),
		Overdraft: b.overdraft,
		Strategy:  string(b.strategy.Mode()),
	}
}

func (b *Budget) availableLocked() int64 {
	if b.used >= b.capacity {
		return 0
	}
	return b.capacity - b.used
}
