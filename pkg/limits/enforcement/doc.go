// Package enforcement provides admission strategies for quota budgets.
//
// # Overview
//
// A Strategy decides what happens when a charge is made against a budget:
//
//   - Strict: reject the charge when it does not fit, leaving the budget untouched
//   - Advisory: grant the charge and record whatever does not fit as overdraft
//   - Unbounded: grant everything, used for placeholder budgets only and
//     never selectable by name
//
// # Usage
//
//	strategy, err := enforcement.New(enforcement.ModeStrict)
//	if err != nil {
//	    return err
//	}
//
//	decision := strategy.Admit(used, capacity, amount)
//	if !decision.Allowed() {
//	    // reject
//	}
//
// New policies are added with Register and then selected by name from
// configuration; budgets and composites never switch on the concrete type.
//
// # Thread Safety
//
// Strategies are stateless values and can be shared freely.
package enforcement
