// Package identity provides the registry of per-identity shared budgets.
//
// # Overview
//
// Every session that belongs to the same identity (a user, tenant or API
// key) charges one shared budget. The Store creates that budget on first
// reference and discards it, usage included, when the last reference is
// released:
//
//	lease, err := store.AcquireFor("user-42", 64<<20)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//
//	shared := lease.Budget()
//
// # Thread Safety
//
// A single mutex guards the map and all reference counts, which makes
// creation and removal linearizable with respect to each other.
package identity
