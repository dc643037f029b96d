package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

type planStore struct {
	s *Store
}

const planColumns = `
	id, organizacion_id, codigo, nombre, precios, dias_trial,
	caracteristicas, limites, publico, creado_en, actualizado_en`

func (r *planStore) Get(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	return r.get(ctx, `SELECT`+planColumns+` FROM planes WHERE id = $1`, id)
}

func (r *planStore) GetByCode(ctx context.Context, vendorID uuid.UUID, code string) (*billing.Plan, error) {
	return r.get(ctx, `SELECT`+planColumns+` FROM planes WHERE organizacion_id = $1 AND codigo = $2`, vendorID, code)
}

func (r *planStore) List(ctx context.Context, vendorID uuid.UUID) ([]*billing.Plan, error) {
	var plans []*billing.Plan
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT`+planColumns+`
			FROM planes
			WHERE organizacion_id = $1
			ORDER BY codigo`, vendorID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			plan, err := scanPlan(rows)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *planStore) Upsert(ctx context.Context, plan *billing.Plan) error {
	prices, err := json.Marshal(plan.Prices)
	if err != nil {
		return fmt.Errorf("encode plan prices: %w", err)
	}
	limits, err := json.Marshal(plan.Limits)
	if err != nil {
		return fmt.Errorf("encode plan limits: %w", err)
	}

	features := make([]string, len(plan.Features))
	for i, f := range plan.Features {
		features[i] = string(f)
	}

	now := time.Now().UTC()
	return r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO planes (
				id, organizacion_id, codigo, nombre, precios, dias_trial,
				caracteristicas, limites, publico, creado_en, actualizado_en
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (organizacion_id, codigo) DO UPDATE SET
				nombre = EXCLUDED.nombre,
				precios = EXCLUDED.precios,
				dias_trial = EXCLUDED.dias_trial,
				caracteristicas = EXCLUDED.caracteristicas,
				limites = EXCLUDED.limites,
				publico = EXCLUDED.publico,
				actualizado_en = EXCLUDED.actualizado_en`,
			plan.ID, plan.VendorID, plan.Code, plan.Name, prices, plan.TrialDays,
			features, limits, plan.Public, plan.CreatedAt, now,
		)
		if err != nil {
			return fmt.Errorf("upsert plan %s: %w", plan.Code, err)
		}
		return nil
	})
}

func (r *planStore) get(ctx context.Context, query string, args ...any) (*billing.Plan, error) {
	var plan *billing.Plan
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		var err error
		plan, err = scanPlan(q.QueryRow(ctx, query, args...))
		return err
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

func scanPlan(row pgx.Row) (*billing.Plan, error) {
	var (
		plan     billing.Plan
		prices   []byte
		limits   []byte
		features []string
	)
	err := row.Scan(
		&plan.ID, &plan.VendorID, &plan.Code, &plan.Name, &prices, &plan.TrialDays,
		&features, &limits, &plan.Public, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(prices, &plan.Prices); err != nil {
		return nil, fmt.Errorf("decode plan prices: %w", err)
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &plan.Limits); err != nil {
			return nil, fmt.Errorf("decode plan limits: %w", err)
		}
	}
	plan.Features = make([]billing.Feature, len(features))
	for i, f := range features {
		plan.Features[i] = billing.Feature(f)
	}
	return &plan, nil
}
