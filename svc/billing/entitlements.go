package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ModuleFlagStore reads and writes a tenant's module flags: which platform
// modules are switched on for that organization.
type ModuleFlagStore interface {
	GetModuleFlags(ctx context.Context, tenantID uuid.UUID) (map[Feature]bool, error)
	SaveModuleFlags(ctx context.Context, tenantID uuid.UUID, flags map[Feature]bool) error
}

// EntitlementSyncer maps plan features onto tenant module flags when a
// subscription becomes active (the dogfooding hook) and when a plan's
// feature set is edited administratively.
type EntitlementSyncer struct {
	store ModuleFlagStore
}

// NewEntitlementSyncer creates a syncer. Panics on a nil store.
func NewEntitlementSyncer(store ModuleFlagStore) *EntitlementSyncer {
	if store == nil {
		panic("billing: module flag store is required")
	}
	return &EntitlementSyncer{store: store}
}

// Sync merges the plan's features into the tenant's module flags:
//   - features removed from the plan are dropped,
//   - features the tenant already had keep the tenant's on/off choice,
//   - newly granted features default to on.
func (s *EntitlementSyncer) Sync(ctx context.Context, tenantID uuid.UUID, plan *Plan) error {
	if plan == nil {
		return ErrPlanNotFound
	}

	current, err := s.store.GetModuleFlags(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load module flags for tenant %s: %w", tenantID, err)
	}

	merged := make(map[Feature]bool, len(plan.Features))
	for _, f := range plan.Features {
		if enabled, had := current[f]; had {
			merged[f] = enabled
		} else {
			merged[f] = true
		}
	}

	if err := s.store.SaveModuleFlags(ctx, tenantID, merged); err != nil {
		return fmt.Errorf("save module flags for tenant %s: %w", tenantID, err)
	}
	return nil
}
