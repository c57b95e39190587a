// Package budget provides the quota Limiter: a fixed capacity with a
// mutable used count.
//
// # Overview
//
// A Budget is the smallest quota scope. It tracks abstract units (bytes,
// tokens, slots); it never hands out memory itself. Acquire charges units,
// Release returns them:
//
//	b := budget.New("session", 400)
//	if err := b.Acquire(10); err != nil {
//	    return err // wraps budget.ErrQuotaExceeded
//	}
//	defer b.Release(10)
//
// # Strategies
//
// How a budget reacts to a charge that does not fit is decided by its
// enforcement.Strategy. The default is strict admission: the charge is
// rejected and the budget is left untouched.
//
// # Over-release
//
// Releasing more than is used clamps used at zero. The optional
// OverReleaseFunc hook reports the excess so budget leaks stay visible.
//
// # Thread Safety
//
// All Budget operations are safe for concurrent use.
package budget
