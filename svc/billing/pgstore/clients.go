package pgstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

// ClientDirectory answers CRM lookups for the billing strategies and the
// notification dispatcher. Checkout and sweep paths cross tenant boundaries
// (the operator resolves clients representing other tenants), so queries run
// under the bypass scope with explicit organization predicates.
type ClientDirectory struct {
	exec tenant.Executor
}

// NewClientDirectory creates a ClientDirectory. Panics on a nil executor.
func NewClientDirectory(exec tenant.Executor) *ClientDirectory {
	if exec == nil {
		panic("pgstore: tenant executor is required")
	}
	return &ClientDirectory{exec: exec}
}

func (d *ClientDirectory) FindLinkedClient(ctx context.Context, operatorID, linkedOrgID uuid.UUID) (uuid.UUID, error) {
	var clientID uuid.UUID
	err := d.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT id FROM clientes
			WHERE organizacion_id = $1 AND organizacion_vinculada = $2`,
			operatorID, linkedOrgID,
		).Scan(&clientID)
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, billing.ErrClientNotFound
		}
		return uuid.Nil, err
	}
	return clientID, nil
}

func (d *ClientDirectory) ClientBelongsTo(ctx context.Context, tenantID, clientID uuid.UUID) (bool, error) {
	var owned bool
	err := d.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM clientes
				WHERE id = $1 AND organizacion_id = $2
			)`,
			clientID, tenantID,
		).Scan(&owned)
	})
	if err != nil {
		return false, err
	}
	return owned, nil
}

func (d *ClientDirectory) LinkedOrganization(ctx context.Context, clientID uuid.UUID) (uuid.UUID, bool, error) {
	var linked *uuid.UUID
	err := d.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT organizacion_vinculada FROM clientes
			WHERE id = $1`,
			clientID,
		).Scan(&linked)
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, false, billing.ErrClientNotFound
		}
		return uuid.Nil, false, err
	}
	if linked == nil {
		return uuid.Nil, false, nil
	}
	return *linked, true, nil
}

// ClientEmail returns the contact address of a client record. Used for
// subscriber-facing lifecycle email.
func (d *ClientDirectory) ClientEmail(ctx context.Context, clientID uuid.UUID) (string, error) {
	var addr string
	err := d.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT correo FROM clientes
			WHERE id = $1`,
			clientID,
		).Scan(&addr)
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", billing.ErrClientNotFound
		}
		return "", err
	}
	return addr, nil
}
