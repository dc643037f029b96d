// Package billing implements the subscription lifecycle for a multi-tenant
// appointment platform: plan catalog, checkout with coupons and trials,
// state machine enforcement, optimistic concurrency over subscription rows,
// payment gateway integration, and plan-to-module entitlement mapping.
//
// # Architecture
//
// The package centers on a Service orchestrating a handful of narrow
// interfaces:
//
//   - Store: aggregate persistence (subscriptions, plans, coupons, payments,
//     checkout tokens) with transactional composition via Atomically
//   - Gateway: hosted-checkout payment provider (Paddle implementation here)
//   - ClientDirectory: resolves the subscriber client and linked organization
//   - Notifier: best-effort lifecycle emails
//   - EntitlementSyncer: maps plan features onto tenant module flags
//
// # State machine
//
// Subscription states are persisted with their Spanish values (trial,
// pendiente_pago, activa, pausada, vencida, grace_period, suspendida,
// cancelada). ValidateTransition enforces a fixed transition graph; a
// self-transition is always an idempotent no-op, and cancelada is terminal.
// grace_period is deliberately absent from the generic graph: only the
// dunning sweep reaches it, through CompareAndSwapState.
//
// # Concurrency
//
// Subscription rows carry their UpdatedAt timestamp as an optimistic lock
// version. Scheduled jobs mutate exclusively through
// SubscriptionStore.CompareAndSwapState, which reports CASApplied, CASLost
// or CASNotFound; a lost lock means a concurrent writer (usually a webhook)
// got there first and the job simply skips the row.
//
// # Billing strategies
//
// SelectStrategy picks between platform billing (the operator sells to its
// linked client organizations) and customer billing (a vendor organization
// sells to its own clients, possibly external subscribers with no client
// record). The operator can never subscribe to itself.
package billing
