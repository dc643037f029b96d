// Package pgstore implements the billing stores on Postgres.
//
// All access goes through a tenant executor so row-level security is
// established before any statement runs. Billing tables are read across
// vendors by system paths (webhook processing, dunning sweeps), which run
// under the executor's bypass scope; every statement still carries its
// organization predicate explicitly.
//
// The schema lives in embedded goose migrations; see Migrate.
package pgstore
