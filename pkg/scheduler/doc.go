// Package scheduler provides a small in-process periodic job runner used for
// the billing sweeps (dunning, trial expiry, gateway polling fallback,
// webhook monitoring).
//
// The model is cooperative: each job runs on its own ticker goroutine, runs
// are panic-contained, and a failed run is simply retried at the next tick.
// There is no distributed coordination; correctness against concurrently
// arriving webhooks relies on per-row optimistic locking in the stores, not
// on scheduling guarantees.
package scheduler
