package limits

import (
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/composite"
	"mercator-hq/quota/pkg/limits/identity"
)

// Errors returned by the quota engine. They alias the budget package
// sentinels so callers only need to import limits.
var (
	// ErrQuotaExceeded is returned when some member cannot grant an acquisition.
	ErrQuotaExceeded = budget.ErrQuotaExceeded

	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = budget.ErrInvalidAmount

	// ErrUnknownMember is returned by member lookups that find nothing.
	ErrUnknownMember = budget.ErrUnknownMember

	// ErrUnknownIdentity is returned when releasing an identity with no live budget.
	ErrUnknownIdentity = budget.ErrUnknownIdentity

	// ErrEmptyIdentity is returned when upgrading with the empty identity.
	ErrEmptyIdentity = budget.ErrEmptyIdentity

	// ErrClosed is returned when a closed composite is used.
	ErrClosed = composite.ErrClosed
)

// DefaultIdentityPrefix is prepended to an identity key to name its budget.
const DefaultIdentityPrefix = "identity_"

// DefaultGlobalName is the name of the global budget until ConfigureGlobal
// names it.
const DefaultGlobalName = "global"

// Observer receives engine events. The engine itself never logs or exports
// metrics; collectors implement Observer instead.
//
// Implementations must be safe for concurrent use and must not call back
// into the repository.
type Observer interface {
	composite.Observer

	// ObserveOverRelease is called when a budget is released by more than
	// it holds. excess is the part that was clamped away.
	ObserveOverRelease(limiter string, requested, excess int64)

	// ObserveIdentity is called when an identity budget is created
	// (created=true) or reclaimed (created=false).
	ObserveIdentity(identity string, created bool)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ObserveAcquire(*composite.Limiter, int64, error) {}
func (NopObserver) ObserveRelease(*composite.Limiter, int64)        {}
func (NopObserver) ObserveOverRelease(string, int64, int64)         {}
func (NopObserver) ObserveIdentity(string, bool)                    {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) ObserveAcquire(c *composite.Limiter, amount int64, err error) {
	for _, obs := range o {
		obs.ObserveAcquire(c, amount, err)
	}
}

func (o Observers) ObserveRelease(c *composite.Limiter, amount int64) {
	for _, obs := range o {
		obs.ObserveRelease(c, amount)
	}
}

func (o Observers) ObserveOverRelease(limiter string, requested, excess int64) {
	for _, obs := range o {
		obs.ObserveOverRelease(limiter, requested, excess)
	}
}

func (o Observers) ObserveIdentity(identity string, created bool) {
	for _, obs := range o {
		obs.ObserveIdentity(identity, created)
	}
}

// Snapshot is a point-in-time view of the repository.
type Snapshot struct {
	// Strategy is the active enforcement mode.
	Strategy string `json:"strategy"`

	// Global is the process-wide budget.
	Global budget.Snapshot `json:"global"`

	// SessionCapacity stamps new session budgets.
	SessionCapacity int64 `json:"session_capacity"`

	// IdentityCapacity sizes identity budgets created from now on.
	IdentityCapacity int64 `json:"identity_capacity"`

	// Identities lists every live identity budget.
	Identities []identity.Entry `json:"identities"`
}
