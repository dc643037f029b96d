package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/citaplan/citaplan/pkg/tenant"
)

// The guard checks fire before any pool access, so a zero pool is enough.
func TestExecutorGuards(t *testing.T) {
	t.Parallel()

	exec := tenant.NewExecutor(&pgxpool.Pool{})

	t.Run("nil scope func", func(t *testing.T) {
		t.Parallel()
		err := exec.WithBypass(context.Background(), nil)
		assert.ErrorIs(t, err, tenant.ErrNilScopeFunc)
	})

	t.Run("zero tenant id", func(t *testing.T) {
		t.Parallel()
		err := exec.WithTenant(context.Background(), uuid.Nil, func(context.Context, tenant.Querier) error {
			return nil
		})
		assert.ErrorIs(t, err, tenant.ErrMissingTenantID)
	})

	t.Run("nil pool panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { tenant.NewExecutor(nil) })
	})
}
