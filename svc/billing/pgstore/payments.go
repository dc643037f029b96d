package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

type paymentStore struct {
	s *Store
}

const paymentColumns = `
	id, organizacion_id, suscripcion_id, monto, moneda, estado,
	gateway_payment_id, gateway_request_id,
	monto_reembolsado, fecha_reembolso, creado_en, actualizado_en`

func (r *paymentStore) Get(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var payment *billing.Payment
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		var err error
		payment, err = scanPayment(q.QueryRow(ctx, `SELECT`+paymentColumns+` FROM pagos WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *paymentStore) Create(ctx context.Context, p *billing.Payment) error {
	return r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO pagos (
				id, organizacion_id, suscripcion_id, monto, moneda, estado,
				gateway_payment_id, gateway_request_id,
				monto_reembolsado, fecha_reembolso, creado_en, actualizado_en
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			p.ID, p.VendorID, p.SubscriptionID, p.Amount.Amount, p.Amount.Currency, p.Status,
			p.GatewayPaymentID, p.GatewayRequestID,
			p.RefundedAmount, p.RefundedAt, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert payment %s: %w", p.ID, err)
		}
		return nil
	})
}

func (r *paymentStore) Update(ctx context.Context, p *billing.Payment) error {
	now := time.Now().UTC()
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE pagos SET
				estado = $2,
				gateway_payment_id = $3,
				gateway_request_id = $4,
				monto_reembolsado = $5,
				fecha_reembolso = $6,
				actualizado_en = $7
			WHERE id = $1`,
			p.ID, p.Status, p.GatewayPaymentID, p.GatewayRequestID,
			p.RefundedAmount, p.RefundedAt, now,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrPaymentNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

func (r *paymentStore) ListForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*billing.Payment, error) {
	var payments []*billing.Payment
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT`+paymentColumns+`
			FROM pagos
			WHERE suscripcion_id = $1
			ORDER BY creado_en`, subscriptionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				return err
			}
			payments = append(payments, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*billing.Payment, error) {
	var p billing.Payment
	err := row.Scan(
		&p.ID, &p.VendorID, &p.SubscriptionID, &p.Amount.Amount, &p.Amount.Currency, &p.Status,
		&p.GatewayPaymentID, &p.GatewayRequestID,
		&p.RefundedAmount, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
