package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations available inside a scoped execution.
// Both pgx.Tx and pgxpool.Pool satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ScopeFunc runs data access inside an established security scope.
type ScopeFunc func(ctx context.Context, q Querier) error

// Executor establishes a per-query security context before any data access.
// Every store call in the repository runs through one of its methods: either
// scoped to a single tenant, so cross-tenant reads and writes are impossible
// even on programmer error, or with the bypass marker set for trusted system
// paths that have to see across tenants (resolving another tenant's linked
// client, scheduled sweeps over the operator's subscription table).
type Executor interface {
	// WithTenant runs fn with row-level security scoped to tenantID.
	WithTenant(ctx context.Context, tenantID uuid.UUID, fn ScopeFunc) error

	// WithBypass runs fn with row-level security bypassed.
	// Reserve for system jobs and operator-internal lookups.
	WithBypass(ctx context.Context, fn ScopeFunc) error

	// InTransaction runs fn scoped to tenantID; it carries the same scoping
	// guarantees as WithTenant and exists for call sites where the point is
	// that several related writes commit or roll back together.
	InTransaction(ctx context.Context, tenantID uuid.UUID, fn ScopeFunc) error
}

// PgExecutor implements Executor on a pgx connection pool.
//
// Scoping is expressed through transaction-local GUCs (app.tenant_id,
// app.bypass_rls) consumed by the row-level security policies in the schema.
// SET LOCAL dies with the transaction on every exit path, commit or rollback,
// so a connection returned to the pool can never carry a stale tenant marker
// into the next caller. Each scope also resets any session-level marker a
// misbehaving client might have left behind.
type PgExecutor struct {
	pool *pgxpool.Pool
}

// NewExecutor creates a PgExecutor on the given pool.
// Panics on a nil pool to fail fast during initialization.
func NewExecutor(pool *pgxpool.Pool) *PgExecutor {
	if pool == nil {
		panic("tenant: pgx pool is required")
	}
	return &PgExecutor{pool: pool}
}

func (e *PgExecutor) WithTenant(ctx context.Context, tenantID uuid.UUID, fn ScopeFunc) error {
	return e.run(ctx, &tenantID, false, fn)
}

func (e *PgExecutor) WithBypass(ctx context.Context, fn ScopeFunc) error {
	return e.run(ctx, nil, true, fn)
}

func (e *PgExecutor) InTransaction(ctx context.Context, tenantID uuid.UUID, fn ScopeFunc) error {
	return e.run(ctx, &tenantID, false, fn)
}

func (e *PgExecutor) run(ctx context.Context, tenantID *uuid.UUID, bypass bool, fn ScopeFunc) error {
	if fn == nil {
		return ErrNilScopeFunc
	}
	if tenantID != nil && *tenantID == uuid.Nil {
		return ErrMissingTenantID
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tenant: begin scoped transaction: %w", err)
	}
	// Rollback after commit is a no-op; this covers every early return.
	defer func() { _ = tx.Rollback(ctx) }()

	// Clear session-level leftovers before establishing this scope.
	if _, err := tx.Exec(ctx, `RESET app.tenant_id`); err != nil {
		return fmt.Errorf("tenant: reset tenant marker: %w", err)
	}
	if _, err := tx.Exec(ctx, `RESET app.bypass_rls`); err != nil {
		return fmt.Errorf("tenant: reset bypass marker: %w", err)
	}

	if bypass {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.bypass_rls', 'on', true)`); err != nil {
			return fmt.Errorf("tenant: set bypass marker: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID.String()); err != nil {
			return fmt.Errorf("tenant: set tenant marker: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tenant: commit scoped transaction: %w", err)
	}
	return nil
}
