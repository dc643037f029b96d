package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

// ModuleFlagStore implements billing.ModuleFlagStore. Flags are written
// under the owning tenant's scope so row-level security applies.
type ModuleFlagStore struct {
	exec tenant.Executor
}

// NewModuleFlagStore creates the store. Panics on a nil executor.
func NewModuleFlagStore(exec tenant.Executor) *ModuleFlagStore {
	if exec == nil {
		panic("pgstore: tenant executor is required")
	}
	return &ModuleFlagStore{exec: exec}
}

func (r *ModuleFlagStore) GetModuleFlags(ctx context.Context, tenantID uuid.UUID) (map[billing.Feature]bool, error) {
	flags := make(map[billing.Feature]bool)
	err := r.exec.WithTenant(ctx, tenantID, func(ctx context.Context, q tenant.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT modulo, habilitado
			FROM organizacion_modulos
			WHERE organizacion_id = $1`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				module  string
				enabled bool
			)
			if err := rows.Scan(&module, &enabled); err != nil {
				return err
			}
			flags[billing.Feature(module)] = enabled
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load module flags for %s: %w", tenantID, err)
	}
	return flags, nil
}

// SaveModuleFlags replaces the tenant's flag set in one scoped transaction,
// matching the entitlement syncer's merge semantics: anything absent from
// the new set is no longer granted.
func (r *ModuleFlagStore) SaveModuleFlags(ctx context.Context, tenantID uuid.UUID, flags map[billing.Feature]bool) error {
	now := time.Now().UTC()
	err := r.exec.InTransaction(ctx, tenantID, func(ctx context.Context, q tenant.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM organizacion_modulos WHERE organizacion_id = $1`, tenantID); err != nil {
			return err
		}
		for module, enabled := range flags {
			if _, err := q.Exec(ctx, `
				INSERT INTO organizacion_modulos (organizacion_id, modulo, habilitado, actualizado_en)
				VALUES ($1, $2, $3, $4)`,
				tenantID, string(module), enabled, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save module flags for %s: %w", tenantID, err)
	}
	return nil
}
