package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/pkg/tenant"
)

// Outcome classifies what processing a webhook delivery produced. The
// values are persisted in the ledger.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicado"
	OutcomeIgnored   Outcome = "ignorado"

	// OutcomeReceived marks a freshly claimed delivery whose processing has
	// not settled yet. Resolve replaces it with the final outcome.
	OutcomeReceived Outcome = "recibido"
)

// Receipt is one ledger row: proof that a (gateway, request id) delivery
// was handled, and how.
type Receipt struct {
	ID          uuid.UUID
	Gateway     string
	RequestID   string
	EventType   string
	Outcome     Outcome
	Detail      string
	ProcessedAt time.Time
}

// Ledger is the webhook idempotency ledger. A delivery is identified by
// (gateway, request id); recording the same pair twice is resolved by the
// database, not by application locks.
type Ledger interface {
	// AlreadyProcessed reports whether a receipt exists for the pair.
	AlreadyProcessed(ctx context.Context, gateway, requestID string) (bool, error)

	// Record inserts a receipt. When a concurrent recorder already claimed
	// the pair, Record returns (nil, nil): the delivery was a duplicate and
	// the caller's work should be considered superseded.
	Record(ctx context.Context, r *Receipt) (*Receipt, error)

	// Resolve settles a claimed receipt with its final outcome.
	Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, detail string) error

	// CountsSince aggregates recorded outcomes after the given time.
	CountsSince(ctx context.Context, since time.Time) (map[Outcome]int, error)
}

// PgLedger implements Ledger on the webhooks_procesados table. The unique
// constraint on (gateway, request_id) makes the ON CONFLICT DO NOTHING
// insert an atomic claim.
type PgLedger struct {
	exec tenant.Executor
}

// NewPgLedger creates a ledger. Panics on a nil executor.
func NewPgLedger(exec tenant.Executor) *PgLedger {
	if exec == nil {
		panic("webhook: tenant executor is required")
	}
	return &PgLedger{exec: exec}
}

func (l *PgLedger) AlreadyProcessed(ctx context.Context, gateway, requestID string) (bool, error) {
	var exists bool
	err := l.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM webhooks_procesados
				WHERE gateway = $1 AND request_id = $2
			)`, gateway, requestID).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("webhook: check ledger for %s/%s: %w", gateway, requestID, err)
	}
	return exists, nil
}

func (l *PgLedger) Record(ctx context.Context, r *Receipt) (*Receipt, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now().UTC()
	}

	var inserted bool
	err := l.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		tag, err := q.Exec(ctx, `
			INSERT INTO webhooks_procesados (id, gateway, request_id, tipo_evento, resultado, detalle, procesado_en)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (gateway, request_id) DO NOTHING`,
			r.ID, r.Gateway, r.RequestID, r.EventType, r.Outcome, r.Detail, r.ProcessedAt,
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: record receipt for %s/%s: %w", r.Gateway, r.RequestID, err)
	}
	if !inserted {
		return nil, nil
	}
	return r, nil
}

func (l *PgLedger) Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, detail string) error {
	err := l.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		_, err := q.Exec(ctx, `
			UPDATE webhooks_procesados
			SET resultado = $2, detalle = $3
			WHERE id = $1`,
			id, outcome, detail,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: resolve receipt %s: %w", id, err)
	}
	return nil
}

func (l *PgLedger) CountsSince(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	counts := make(map[Outcome]int)
	err := l.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT resultado, COUNT(*)
			FROM webhooks_procesados
			WHERE procesado_en >= $1
			GROUP BY resultado`, since)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				outcome Outcome
				n       int
			)
			if err := rows.Scan(&outcome, &n); err != nil {
				return err
			}
			counts[outcome] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: count ledger outcomes: %w", err)
	}
	return counts, nil
}
