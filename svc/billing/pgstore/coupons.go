package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

type couponStore struct {
	s *Store
}

func (r *couponStore) GetByCode(ctx context.Context, vendorID uuid.UUID, code string) (*billing.Coupon, error) {
	var coupon billing.Coupon
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT id, organizacion_id, codigo, tipo, valor,
			       max_usos, usos, valido_desde, valido_hasta,
			       planes_aplicables, creado_en
			FROM cupones
			WHERE organizacion_id = $1 AND codigo = $2`,
			vendorID, code,
		).Scan(
			&coupon.ID, &coupon.VendorID, &coupon.Code, &coupon.Kind, &coupon.Value,
			&coupon.MaxUses, &coupon.Uses, &coupon.ValidFrom, &coupon.ValidUntil,
			&coupon.PlanIDs, &coupon.CreatedAt,
		)
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// Redeem increments the usage counter with the cap check in the same
// conditional update, so the cap holds under concurrent redemptions.
func (r *couponStore) Redeem(ctx context.Context, id uuid.UUID) error {
	return r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE cupones
			SET usos = usos + 1
			WHERE id = $1 AND (max_usos = 0 OR usos < max_usos)`,
			id,
		)
		if err != nil {
			return fmt.Errorf("redeem coupon %s: %w", id, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cupones WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return billing.ErrCouponNotFound
		}
		return billing.ErrCouponExhausted
	})
}
