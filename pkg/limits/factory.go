package limits

import (
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/composite"
	"mercator-hq/quota/pkg/limits/enforcement"
)

// Factory builds budgets and composites under one enforcement strategy.
// A Factory is immutable and safe for concurrent use.
type Factory struct {
	strategy    enforcement.Strategy
	overRelease budget.OverReleaseFunc
	observer    composite.Observer
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithOverReleaseFunc is installed on every budget the factory builds.
func WithOverReleaseFunc(fn budget.OverReleaseFunc) FactoryOption {
	return func(f *Factory) {
		f.overRelease = fn
	}
}

// WithCompositeObserver is installed on every composite the factory builds.
func WithCompositeObserver(o composite.Observer) FactoryOption {
	return func(f *Factory) {
		f.observer = o
	}
}

// NewFactory creates a factory. A nil strategy means enforcement.Strict.
func NewFactory(strategy enforcement.Strategy, opts ...FactoryOption) *Factory {
	if strategy == nil {
		strategy = enforcement.Strict{}
	}
	f := &Factory{strategy: strategy}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Strategy returns the factory's enforcement strategy.
func (f *Factory) Strategy() enforcement.Strategy {
	return f.strategy
}

// NewLimiter builds a budget under the factory's strategy.
func (f *Factory) NewLimiter(name string, capacity int64) *budget.Budget {
	return budget.New(name, capacity,
		budget.WithStrategy(f.strategy),
		budget.WithOverReleaseFunc(f.overRelease),
	)
}

// MakeComposite returns a composite seeded with global and a fresh session
// budget named sessionName with sessionCapacity. The session budget is
// owned by the composite alone.
func (f *Factory) MakeComposite(name, sessionName string, global budget.Limiter, sessionCapacity int64) *composite.Limiter {
	var opts []composite.Option
	if f.observer != nil {
		opts = append(opts, composite.WithObserver(f.observer))
	}
	members := []budget.Limiter{f.NewLimiter(sessionName, sessionCapacity)}
	if global != nil {
		members = append(members, global)
	}
	return composite.New(name, members, opts...)
}

// MakeUnbounded returns a budget that never rejects. It is a stand-in for
// when no real budget can be found; its Available is not meaningful.
func (f *Factory) MakeUnbounded(placeholder int64) *budget.Budget {
	return budget.New("unbounded", placeholder,
		budget.WithStrategy(enforcement.Unbounded{}),
		budget.WithOverReleaseFunc(f.overRelease),
	)
}
