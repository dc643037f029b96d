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

type subscriptionStore struct {
	s *Store
}

const subscriptionColumns = `
	id, organizacion_id, plan_id, cliente_id, suscriptor_externo,
	periodo, estado, fecha_inicio, proximo_cobro,
	es_trial, fecha_fin_trial, fecha_gracia,
	gateway, gateway_sub_id, gateway_customer_id,
	precio_monto, precio_moneda, auto_cobro,
	meses_activos, total_pagado, cupon_id,
	fecha_fin, motivo_cancelacion, cancelado_por,
	creado_en, actualizado_en`

func (r *subscriptionStore) Get(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var sub *billing.Subscription
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		row := q.QueryRow(ctx, `SELECT`+subscriptionColumns+` FROM suscripciones WHERE id = $1`, id)
		var err error
		sub, err = scanSubscription(row)
		return err
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionStore) Create(ctx context.Context, sub *billing.Subscription) error {
	external, err := marshalSubscriber(sub.External)
	if err != nil {
		return err
	}

	err = r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO suscripciones (
				id, organizacion_id, plan_id, cliente_id, suscriptor_externo,
				periodo, estado, fecha_inicio, proximo_cobro,
				es_trial, fecha_fin_trial, fecha_gracia,
				gateway, gateway_sub_id, gateway_customer_id,
				precio_monto, precio_moneda, auto_cobro,
				meses_activos, total_pagado, cupon_id,
				fecha_fin, motivo_cancelacion, cancelado_por,
				creado_en, actualizado_en
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8, $9,
				$10, $11, $12,
				$13, $14, $15,
				$16, $17, $18,
				$19, $20, $21,
				$22, $23, $24,
				$25, $26
			)`,
			sub.ID, sub.VendorID, sub.PlanID, sub.ClientID, external,
			sub.Period, sub.Status, sub.StartedAt, sub.NextChargeAt,
			sub.Trial, sub.TrialEndsAt, sub.GraceDeadline,
			sub.Gateway, sub.GatewaySubID, sub.GatewayCustomerID,
			sub.CurrentPrice.Amount, sub.CurrentPrice.Currency, sub.AutoCharge,
			sub.MonthsActive, sub.TotalPaid, sub.CouponID,
			sub.CancelledAt, sub.CancelReason, sub.CancelledBy,
			sub.CreatedAt, sub.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return billing.ErrDuplicateSubscription
		}
		return fmt.Errorf("insert subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (r *subscriptionStore) Update(ctx context.Context, sub *billing.Subscription) error {
	external, err := marshalSubscriber(sub.External)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE suscripciones SET
				estado = $2,
				proximo_cobro = $3,
				fecha_fin_trial = $4,
				fecha_gracia = $5,
				gateway = $6,
				gateway_sub_id = $7,
				gateway_customer_id = $8,
				precio_monto = $9,
				precio_moneda = $10,
				auto_cobro = $11,
				meses_activos = $12,
				total_pagado = $13,
				suscriptor_externo = $14,
				fecha_fin = $15,
				motivo_cancelacion = $16,
				cancelado_por = $17,
				actualizado_en = $18
			WHERE id = $1`,
			sub.ID,
			sub.Status, sub.NextChargeAt, sub.TrialEndsAt, sub.GraceDeadline,
			sub.Gateway, sub.GatewaySubID, sub.GatewayCustomerID,
			sub.CurrentPrice.Amount, sub.CurrentPrice.Currency, sub.AutoCharge,
			sub.MonthsActive, sub.TotalPaid, external,
			sub.CancelledAt, sub.CancelReason, sub.CancelledBy,
			now,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrSubscriptionNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	sub.UpdatedAt = now
	return nil
}

func (r *subscriptionStore) ListByStatus(ctx context.Context, vendorID uuid.UUID, status billing.Status) ([]*billing.Subscription, error) {
	return r.list(ctx, `
		SELECT`+subscriptionColumns+`
		FROM suscripciones
		WHERE organizacion_id = $1 AND estado = $2
		ORDER BY creado_en`,
		vendorID, status)
}

func (r *subscriptionStore) ListNonTerminalForSubscriber(ctx context.Context, vendorID uuid.UUID, subscriberKey string) ([]*billing.Subscription, error) {
	return r.list(ctx, `
		SELECT`+subscriptionColumns+`
		FROM suscripciones
		WHERE organizacion_id = $1
		  AND COALESCE(cliente_id::text, suscriptor_externo->>'email') = $2
		  AND estado <> 'cancelada'
		ORDER BY creado_en`,
		vendorID, subscriberKey)
}

func (r *subscriptionStore) ListUpcomingCharges(ctx context.Context, vendorID uuid.UUID, day time.Time) ([]*billing.Subscription, error) {
	return r.list(ctx, `
		SELECT`+subscriptionColumns+`
		FROM suscripciones
		WHERE organizacion_id = $1
		  AND estado = 'activa'
		  AND auto_cobro
		  AND proximo_cobro >= $2 AND proximo_cobro < $3
		ORDER BY proximo_cobro`,
		vendorID, startOfDay(day), startOfDay(day).AddDate(0, 0, 1))
}

func (r *subscriptionStore) ListExpiredTrials(ctx context.Context, vendorID uuid.UUID, asOf time.Time) ([]*billing.Subscription, error) {
	return r.list(ctx, `
		SELECT`+subscriptionColumns+`
		FROM suscripciones
		WHERE organizacion_id = $1
		  AND estado = 'trial'
		  AND fecha_fin_trial <= $2
		ORDER BY fecha_fin_trial`,
		vendorID, asOf)
}

func (r *subscriptionStore) ListPendingOlderThan(ctx context.Context, vendorID uuid.UUID, cutoff time.Time) ([]*billing.Subscription, error) {
	return r.list(ctx, `
		SELECT`+subscriptionColumns+`
		FROM suscripciones
		WHERE organizacion_id = $1
		  AND estado = 'pendiente_pago'
		  AND creado_en < $2
		ORDER BY creado_en`,
		vendorID, cutoff)
}

func (r *subscriptionStore) CompareAndSwapState(ctx context.Context, id uuid.UUID, expectedVersion time.Time, m billing.DunningMutation) (billing.CASOutcome, error) {
	outcome := billing.CASLost
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE suscripciones SET
				estado = $2,
				fecha_gracia = COALESCE($3, fecha_gracia),
				actualizado_en = $4
			WHERE id = $1
			  AND actualizado_en = $5
			  AND estado NOT IN ('activa', 'cancelada')`,
			id, m.NewStatus, m.GraceDeadline, time.Now().UTC(), expectedVersion,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			outcome = billing.CASApplied
			return nil
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suscripciones WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			outcome = billing.CASNotFound
		}
		return nil
	})
	if err != nil {
		return billing.CASLost, fmt.Errorf("compare-and-swap subscription %s: %w", id, err)
	}
	return outcome, nil
}

func (r *subscriptionStore) list(ctx context.Context, query string, args ...any) ([]*billing.Subscription, error) {
	var subs []*billing.Subscription
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			sub, err := scanSubscription(rows)
			if err != nil {
				return err
			}
			subs = append(subs, sub)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var (
		sub      billing.Subscription
		external []byte
	)
	err := row.Scan(
		&sub.ID, &sub.VendorID, &sub.PlanID, &sub.ClientID, &external,
		&sub.Period, &sub.Status, &sub.StartedAt, &sub.NextChargeAt,
		&sub.Trial, &sub.TrialEndsAt, &sub.GraceDeadline,
		&sub.Gateway, &sub.GatewaySubID, &sub.GatewayCustomerID,
		&sub.CurrentPrice.Amount, &sub.CurrentPrice.Currency, &sub.AutoCharge,
		&sub.MonthsActive, &sub.TotalPaid, &sub.CouponID,
		&sub.CancelledAt, &sub.CancelReason, &sub.CancelledBy,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(external) > 0 {
		sub.External = &billing.Subscriber{}
		if err := unmarshalSubscriber(external, sub.External); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

func unmarshalSubscriber(raw []byte, into *billing.Subscriber) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode external subscriber: %w", err)
	}
	return nil
}

func marshalSubscriber(s *billing.Subscriber) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode external subscriber: %w", err)
	}
	return raw, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
