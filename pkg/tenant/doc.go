// Package tenant provides multi-tenant primitives: the tenant entity and
// the scoped query Executor that establishes a per-query security context
// (tenant ID or bypass marker) before any data access happens.
//
// The Executor is the only sanctioned way to touch the database in this
// repository. It guarantees that ambient session markers are cleared on every
// exit path, so a pooled connection can never silently scope a later caller
// with a stale tenant.
package tenant
