// Package logger provides a slog.Logger factory and attribute helpers shared
// across the billing services.
//
// The helpers keep structured log keys consistent (tenant_id, subscription_id,
// gateway, request_id, ...) so that sweep summaries and webhook logs can be
// correlated in log aggregation.
package logger
