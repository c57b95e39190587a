package limits

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mercator-hq/quota/pkg/config"
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/composite"
	"mercator-hq/quota/pkg/limits/enforcement"
	"mercator-hq/quota/pkg/limits/identity"
)

// Repository is the composition root of the quota engine. It holds the
// global budget, the capacity stamped onto new session budgets, the
// identity store and the active factory.
//
// A Repository is built once at startup and passed to whatever needs to
// build limiters. There is no package-level instance.
//
// # Example
//
//	repo := limits.NewRepository()
//	repo.ConfigureGlobal(64<<30, "global")
//	repo.ConfigureSession(1<<30)
//	repo.ConfigureIdentityQuota(8<<30)
//
//	c := repo.MakeLimiter("query", "session")
//	defer c.Close()
//
//	if err := repo.UpgradeWith(userID, c); err != nil {
//	    return err
//	}
//	if err := c.Acquire(size); err != nil {
//	    return err
//	}
//	defer c.Release(size)
type Repository struct {
	// mu protects global and the configured capacities.
	mu               sync.RWMutex
	global           *budget.Budget
	sessionCapacity  int64
	identityCapacity int64

	// factory is read by the identity store while it holds its own lock,
	// so it is kept outside mu.
	factory atomic.Pointer[Factory]

	store          *identity.Store
	identityPrefix string
	observer       Observer
}

// Option configures a Repository.
type Option func(*Repository)

// WithObserver installs an Observer for composite, budget and identity
// events.
func WithObserver(o Observer) Option {
	return func(r *Repository) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithIdentityPrefix sets the prefix used to name identity budgets.
func WithIdentityPrefix(prefix string) Option {
	return func(r *Repository) {
		r.identityPrefix = prefix
	}
}

// NewRepository creates a repository with a strict factory. Every capacity
// starts at zero, so nothing is admitted until the repository is
// configured.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		identityPrefix: DefaultIdentityPrefix,
		observer:       NopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.factory.Store(r.newFactory(enforcement.Strict{}))
	r.store = identity.NewStore(
		identity.WithBudgetFunc(func(id string, capacity int64) *budget.Budget {
			return r.factory.Load().NewLimiter(r.identityPrefix+id, capacity)
		}),
		identity.WithHooks(
			func(id string) { r.observer.ObserveIdentity(id, true) },
			func(id string) { r.observer.ObserveIdentity(id, false) },
		),
	)
	r.global = r.Factory().NewLimiter(DefaultGlobalName, 0)
	return r
}

func (r *Repository) newFactory(s enforcement.Strategy) *Factory {
	return NewFactory(s,
		WithOverReleaseFunc(r.observer.ObserveOverRelease),
		WithCompositeObserver(r.observer),
	)
}

// Factory returns the active factory.
func (r *Repository) Factory() *Factory {
	return r.factory.Load()
}

// SetStrategy switches the active factory to the strategy registered for
// mode. Budgets that already exist keep the strategy they were built with.
func (r *Repository) SetStrategy(mode enforcement.Mode) error {
	s, err := enforcement.New(mode)
	if err != nil {
		return fmt.Errorf("set strategy: %w", err)
	}
	r.factory.Store(r.newFactory(s))
	return nil
}

// ConfigureGlobal replaces the global budget with a new one of the given
// capacity. Composites built before the call keep the previous budget.
func (r *Repository) ConfigureGlobal(capacity int64, name string) {
	if name == "" {
		name = DefaultGlobalName
	}
	b := r.Factory().NewLimiter(name, capacity)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = b
}

// ConfigureSession sets the capacity of session budgets created from now on.
func (r *Repository) ConfigureSession(capacity int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionCapacity = max(capacity, 0)
}

// ConfigureIdentityQuota sets the capacity of identity budgets created from
// now on. Live identity budgets keep their capacity.
func (r *Repository) ConfigureIdentityQuota(capacity int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identityCapacity = max(capacity, 0)
}

// Global returns the process-wide budget. Every call returns the same
// instance until ConfigureGlobal replaces it.
func (r *Repository) Global() *budget.Budget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// Session returns a new session budget. Session budgets are never shared,
// so two calls never see each other's usage.
func (r *Repository) Session() *budget.Budget {
	r.mu.RLock()
	capacity := r.sessionCapacity
	r.mu.RUnlock()
	return r.Factory().NewLimiter("session", capacity)
}

// SessionCapacity returns the capacity stamped onto new session budgets.
func (r *Repository) SessionCapacity() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionCapacity
}

// IdentityCapacity returns the capacity given to new identity budgets.
func (r *Repository) IdentityCapacity() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identityCapacity
}

// MakeLimiter builds a composite of the global budget and a fresh session
// budget named sessionName.
func (r *Repository) MakeLimiter(name, sessionName string) *composite.Limiter {
	r.mu.RLock()
	global, capacity := r.global, r.sessionCapacity
	r.mu.RUnlock()
	return r.Factory().MakeComposite(name, sessionName, global, capacity)
}

// MakeUnbounded returns a budget that admits everything.
func (r *Repository) MakeUnbounded(placeholder int64) *budget.Budget {
	return r.Factory().MakeUnbounded(placeholder)
}

// UpgradeWith attaches identity's shared budget to c, creating the budget
// if no composite references it yet. Closing c drops the reference, and
// the budget is discarded once no composite holds it.
//
// Usage already held by c is charged to the identity budget. If the
// identity budget cannot absorb it, c is left unchanged and the error
// wraps ErrQuotaExceeded. The empty identity fails with ErrEmptyIdentity.
//
// Upgrading the same composite twice with the same identity attaches the
// shared budget twice, so every later Acquire on c charges that identity
// twice. Callers that may see an identity more than once should track
// which identities c already carries.
func (r *Repository) UpgradeWith(id string, c *composite.Limiter) error {
	if c == nil {
		return fmt.Errorf("upgrade with %q: nil composite", id)
	}

	lease, err := r.store.AcquireFor(id, r.IdentityCapacity())
	if err != nil {
		return fmt.Errorf("upgrade %s: %w", c.Name(), err)
	}
	release := func() { lease.Release() }

	if err := c.AddMember(lease.Budget(), composite.OnClose(release)); err != nil {
		release()
		return fmt.Errorf("upgrade %s with %q: %w", c.Name(), id, err)
	}
	return nil
}

// IdentityStorageSize returns the number of live identity budgets.
func (r *Repository) IdentityStorageSize() int {
	return r.store.Size()
}

// Identities returns the identity store.
func (r *Repository) Identities() *identity.Store {
	return r.store
}

// Apply reconfigures the repository from cfg. The global budget is only
// rebuilt when its name or capacity changed, so a reload does not forget
// global usage.
func (r *Repository) Apply(cfg config.QuotaConfig) error {
	if err := r.SetStrategy(enforcement.Mode(cfg.Strategy)); err != nil {
		return err
	}

	global := r.Global()
	name := cfg.GlobalName
	if name == "" {
		name = DefaultGlobalName
	}
	if global.Capacity() != int64(cfg.GlobalCapacity) || global.Name() != name {
		r.ConfigureGlobal(int64(cfg.GlobalCapacity), name)
	}
	r.ConfigureSession(int64(cfg.SessionCapacity))
	r.ConfigureIdentityQuota(int64(cfg.IdentityCapacity))
	return nil
}

// Snapshot returns a point-in-time view of the repository.
func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	global := r.global
	s := Snapshot{
		SessionCapacity:  r.sessionCapacity,
		IdentityCapacity: r.identityCapacity,
	}
	r.mu.RUnlock()

	s.Strategy = string(r.Factory().Strategy().Mode())
	s.Global = global.Snapshot()
	s.Identities = r.store.Snapshot()
	return s
}

// Reset returns the repository to its unconfigured state: a strict
// factory, a zero-capacity global budget and an empty identity store.
// Leases held by composites built earlier become no-ops.
// This should only be used in testing.
func (r *Repository) Reset() {
	r.factory.Store(r.newFactory(enforcement.Strict{}))
	global := r.Factory().NewLimiter(DefaultGlobalName, 0)

	r.mu.Lock()
	r.global = global
	r.sessionCapacity = 0
	r.identityCapacity = 0
	r.mu.Unlock()

	r.store.Reset()
}
