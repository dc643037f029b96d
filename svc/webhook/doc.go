// Package webhook receives and processes payment gateway notifications.
//
// Deliveries are signature-checked, their idempotency claim is recorded,
// and only then acknowledged; the lifecycle work continues in the
// background and settles the claim with its outcome. Idempotency comes
// from a database ledger keyed on (gateway, request id) with an ON
// CONFLICT DO NOTHING insert as the atomic claim, not from application
// locks. Deliveries without a request id are logged and processed
// unguarded, relying on the idempotency of the state changes themselves.
//
// The package also carries the two safety nets around webhooks: a Monitor
// that watches the ledger's error share, and a Poller that reconciles
// subscriptions stuck in pendiente_pago by asking the gateway directly.
package webhook
