// Package dunning implements the failed-payment recovery sweeps: a
// table-driven email-and-escalation sequence over past-due subscriptions,
// grace-period expiry into suspension, upcoming-charge notices, and trial
// expiry handling.
//
// Every state change goes through the subscription store's compare-and-swap
// path, conditioned on the row version read at scan time. A payment webhook
// landing mid-sweep therefore always wins; the sweep logs the lost lock and
// moves on. Emails are deduplicated across overlapping runs with Redis
// markers, best-effort: a marker failure sends rather than silently drops.
package dunning
