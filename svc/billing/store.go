package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CASOutcome is the tri-state result of a compare-and-swap state write.
type CASOutcome int

const (
	// CASApplied means the conditional write changed exactly one row.
	CASApplied CASOutcome = iota

	// CASLost means the version predicate did not match: another actor
	// (usually a gateway webhook) mutated the row first. Callers log and
	// skip; they do not retry and do not raise.
	CASLost

	// CASNotFound means no row with the given id exists.
	CASNotFound
)

func (o CASOutcome) String() string {
	switch o {
	case CASApplied:
		return "applied"
	case CASLost:
		return "lost"
	case CASNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DunningMutation is the state change applied through the lock-guarded
// dunning path. GraceDeadline is set only when entering grace_period.
type DunningMutation struct {
	NewStatus     Status
	GraceDeadline *time.Time
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	// Get returns a subscription by id, ErrSubscriptionNotFound otherwise.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// Create inserts a subscription, enforcing that the subscriber holds at
	// most one non-terminal subscription per plan. A violation returns
	// ErrDuplicateSubscription.
	Create(ctx context.Context, sub *Subscription) error

	// Update rewrites a subscription row and refreshes UpdatedAt.
	Update(ctx context.Context, sub *Subscription) error

	// ListByStatus returns the vendor's subscriptions in the given state.
	ListByStatus(ctx context.Context, vendorID uuid.UUID, status Status) ([]*Subscription, error)

	// ListNonTerminalForSubscriber returns the subscriber's subscriptions
	// that are not cancelled, across all plans of the vendor.
	ListNonTerminalForSubscriber(ctx context.Context, vendorID uuid.UUID, subscriberKey string) ([]*Subscription, error)

	// ListUpcomingCharges returns active, auto-charging subscriptions whose
	// next charge date falls on the given day.
	ListUpcomingCharges(ctx context.Context, vendorID uuid.UUID, day time.Time) ([]*Subscription, error)

	// ListExpiredTrials returns trial subscriptions whose trial window ended
	// at or before the given time.
	ListExpiredTrials(ctx context.Context, vendorID uuid.UUID, asOf time.Time) ([]*Subscription, error)

	// ListPendingOlderThan returns pendiente_pago subscriptions created
	// before the cutoff, for the gateway polling fallback.
	ListPendingOlderThan(ctx context.Context, vendorID uuid.UUID, cutoff time.Time) ([]*Subscription, error)

	// CompareAndSwapState conditionally applies a dunning state change:
	// the write succeeds only if the row's UpdatedAt still equals
	// expectedVersion and its state is not already activa or cancelada.
	// The expected version must be re-read each sweep pass, never cached.
	CompareAndSwapState(ctx context.Context, id uuid.UUID, expectedVersion time.Time, m DunningMutation) (CASOutcome, error)
}

// PlanStore persists the vendor-scoped plan catalog.
type PlanStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Plan, error)
	GetByCode(ctx context.Context, vendorID uuid.UUID, code string) (*Plan, error)
	List(ctx context.Context, vendorID uuid.UUID) ([]*Plan, error)

	// Upsert creates or updates a plan by (vendor, code). Used by catalog
	// seeding and administrative entitlement edits.
	Upsert(ctx context.Context, plan *Plan) error
}

// CouponStore persists coupons and owns the authoritative usage counter.
type CouponStore interface {
	GetByCode(ctx context.Context, vendorID uuid.UUID, code string) (*Coupon, error)

	// Redeem increments the usage counter, failing with ErrCouponExhausted
	// when the counter has reached the cap. The check and the increment run
	// under the same transaction so the cap can never be exceeded.
	Redeem(ctx context.Context, id uuid.UUID) error
}

// PaymentStore persists charge attempts.
type PaymentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	ListForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*Payment, error)
}

// CheckoutTokenStore persists single-use checkout capability tokens.
type CheckoutTokenStore interface {
	Create(ctx context.Context, t *CheckoutToken) error
	GetByToken(ctx context.Context, token string) (*CheckoutToken, error)

	// Consume moves a pending token to used. Returns ErrTokenNotPending when
	// the token was already spent, cancelled or expired; the conditional
	// update makes consumption single-use under concurrency.
	Consume(ctx context.Context, token string) (*CheckoutToken, error)

	// Cancel moves a pending token to cancelled.
	Cancel(ctx context.Context, token string) error

	// ExpirePending marks pending tokens past their expiry as expired and
	// returns how many were affected.
	ExpirePending(ctx context.Context, asOf time.Time) (int64, error)
}

// Store aggregates the billing stores plus transactional composition.
type Store interface {
	Subscriptions() SubscriptionStore
	Plans() PlanStore
	Coupons() CouponStore
	Payments() PaymentStore
	CheckoutTokens() CheckoutTokenStore

	// Atomically runs fn against a store view whose operations share one
	// transaction. Used when a subscription write, a payment row and a
	// coupon counter must change together.
	Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
