// Package limits is a hierarchical quota engine.
//
// # Overview
//
// A quota is tracked by a budget (package budget): a fixed capacity and a
// used count, guarded by its own lock. Budgets are combined into composite
// limiters (package composite) that grant an acquisition only when every
// member grants it, rolling back the members that already did when a later
// one refuses. Members are ordered by capacity so the tightest budget is
// asked first.
//
// The Repository ties the levels together:
//
//   - global: one budget shared by every composite
//   - session: a fresh budget per composite, owned by it alone
//   - identity: one budget per identity key, shared by every composite
//     upgraded with that key and discarded when the last one closes
//
// # Strategies
//
// How a budget answers an acquisition it cannot fully cover is decided by
// an enforcement.Strategy. The default is strict rejection; advisory
// accounting and an unbounded strategy are also registered, and others can
// be added with enforcement.Register.
//
// # Usage
//
//	repo := limits.NewRepository(limits.WithObserver(collector))
//	if err := repo.Apply(cfg.Quota); err != nil {
//	    return err
//	}
//
//	c := repo.MakeLimiter("query", "session")
//	defer c.Close()
//
//	if err := repo.UpgradeWith(user, c); err != nil {
//	    return err
//	}
//	if err := c.Acquire(bytes); errors.Is(err, limits.ErrQuotaExceeded) {
//	    return err
//	}
//
// # Thread Safety
//
// All operations are safe for concurrent use. A rejected acquisition leaves
// every budget unchanged.
package limits
