// Package notification renders and delivers billing lifecycle emails.
//
// The Dispatcher sits behind both the billing service's notifier and the
// dunning engine's notifier. It resolves the recipient from the embedded
// external subscriber or, for client-linked subscriptions, through a
// RecipientDirectory lookup, then sends HTML email through pkg/email.
//
// Delivery is strictly best-effort: any failure is reported back as an
// unsuccessful NotifyResult and logged, never as an error that could
// abort a billing operation.
package notification
