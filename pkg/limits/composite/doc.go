// Package composite aggregates quota budgets into a single all-or-nothing
// limiter.
//
// A request typically charges several scopes at once: the process-wide
// budget, its own session budget and, once the caller is known, a budget
// shared by every session of the same identity. A composite Limiter checks
// them in ascending capacity order and rolls back partial grants, so after
// any Acquire either every member reflects the charge or none does.
//
// Go has no destructors; Close is the end of a composite's life and is where
// shared members get their references handed back.
package composite
