package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

type tokenStore struct {
	s *Store
}

const tokenColumns = `
	id, token, organizacion_id, cliente_id, suscriptor_externo,
	plan_id, periodo, precio_monto, precio_moneda, cupon_id,
	estado, expira_en, creado_en`

func (r *tokenStore) Create(ctx context.Context, t *billing.CheckoutToken) error {
	external, err := marshalSubscriber(t.External)
	if err != nil {
		return err
	}

	return r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO tokens_checkout (
				id, token, organizacion_id, cliente_id, suscriptor_externo,
				plan_id, periodo, precio_monto, precio_moneda, cupon_id,
				estado, expira_en, creado_en
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.ID, t.Token, t.VendorID, t.ClientID, external,
			t.PlanID, t.Period, t.Price.Amount, t.Price.Currency, t.CouponID,
			t.Status, t.ExpiresAt, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert checkout token: %w", err)
		}
		return nil
	})
}

func (r *tokenStore) GetByToken(ctx context.Context, token string) (*billing.CheckoutToken, error) {
	var t *billing.CheckoutToken
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		var err error
		t, err = scanToken(q.QueryRow(ctx, `SELECT`+tokenColumns+` FROM tokens_checkout WHERE token = $1`, token))
		return err
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrTokenNotFound
		}
		return nil, err
	}
	return t, nil
}

// Consume flips a pending token to used with a conditional update, so a
// token can be spent at most once even under concurrent requests.
func (r *tokenStore) Consume(ctx context.Context, token string) (*billing.CheckoutToken, error) {
	var t *billing.CheckoutToken
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		var err error
		t, err = scanToken(q.QueryRow(ctx, `
			UPDATE tokens_checkout
			SET estado = 'used'
			WHERE token = $1 AND estado = 'pending'
			RETURNING`+tokenColumns, token))
		if err != nil && pg.IsNotFoundError(err) {
			var exists bool
			if scanErr := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens_checkout WHERE token = $1)`, token).Scan(&exists); scanErr != nil {
				return scanErr
			}
			if !exists {
				return billing.ErrTokenNotFound
			}
			return billing.ErrTokenNotPending
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *tokenStore) Cancel(ctx context.Context, token string) error {
	return r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE tokens_checkout
			SET estado = 'cancelled'
			WHERE token = $1 AND estado = 'pending'`, token)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens_checkout WHERE token = $1)`, token).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return billing.ErrTokenNotFound
		}
		return billing.ErrTokenNotPending
	})
}

func (r *tokenStore) ExpirePending(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	err := r.s.run(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE tokens_checkout
			SET estado = 'expired'
			WHERE estado = 'pending' AND expira_en < $1`, asOf)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("expire checkout tokens: %w", err)
	}
	return n, nil
}

func scanToken(row pgx.Row) (*billing.CheckoutToken, error) {
	var (
		t        billing.CheckoutToken
		external []byte
	)
	err := row.Scan(
		&t.ID, &t.Token, &t.VendorID, &t.ClientID, &external,
		&t.PlanID, &t.Period, &t.Price.Amount, &t.Price.Currency, &t.CouponID,
		&t.Status, &t.ExpiresAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(external) > 0 {
		t.External = &billing.Subscriber{}
		if err := unmarshalSubscriber(external, t.External); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
