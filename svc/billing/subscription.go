package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber holds the contact details of an external subscriber that has no
// client record in the vendor's CRM. Either ClientID or External is set on a
// subscription, never both.
type Subscriber struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Subscription is one row per (vendor organization, subscriber). It is
// created by the checkout flow, mutated only through the state transition
// engine, and never hard-deleted: cancellation is a terminal state with
// CancelledAt stamped.
type Subscription struct {
	ID       uuid.UUID
	VendorID uuid.UUID // seller-of-record organization
	PlanID   uuid.UUID

	// ClientID references a client record in the vendor's CRM; External
	// carries an embedded subscriber when no such record exists.
	ClientID *uuid.UUID
	External *Subscriber

	Period BillingPeriod
	Status Status

	StartedAt    time.Time
	NextChargeAt *time.Time // nil while awaiting first payment

	Trial       bool
	TrialEndsAt *time.Time

	// GraceDeadline is set only on entering grace_period, by the dunning
	// sweep's lock-guarded path.
	GraceDeadline *time.Time

	Gateway           string
	GatewaySubID      string
	GatewayCustomerID string

	CurrentPrice Money
	AutoCharge   bool

	MonthsActive int
	TotalPaid    int64 // cumulative, smallest currency unit

	CouponID *uuid.UUID

	CancelledAt  *time.Time // fecha_fin, stamped on cancellation
	CancelReason string
	CancelledBy  string

	CreatedAt time.Time

	// UpdatedAt doubles as the optimistic-lock version token: dunning-driven
	// state writes are conditioned on it matching the value read at scan
	// time. See SubscriptionStore.CompareAndSwapState.
	UpdatedAt time.Time
}

// IsActive reports whether the subscription is in the paid active state.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsTerminal reports whether no further transitions are possible.
func (s *Subscription) IsTerminal() bool {
	return s.Status.Terminal()
}

// InDunning reports whether the subscription is inside the failed-payment
// recovery pipeline.
func (s *Subscription) InDunning() bool {
	return s.Status == StatusPastDue || s.Status == StatusGracePeriod
}

// TrialExpiredAt reports whether the trial window has ended at the given time.
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	if !s.Trial || s.TrialEndsAt == nil {
		return false
	}
	return now.After(*s.TrialEndsAt)
}

// GraceExpiredAt reports whether the grace deadline has been reached at the
// given time. The deadline instant itself counts as expired, so a sweep
// running exactly on it suspends rather than waiting a full extra day.
func (s *Subscription) GraceExpiredAt(now time.Time) bool {
	if s.Status != StatusGracePeriod || s.GraceDeadline == nil {
		return false
	}
	return !now.Before(*s.GraceDeadline)
}

// DaysInState returns whole days elapsed since the last state write. The
// dunning sweep uses it to locate the matching step in the dunning sequence.
func (s *Subscription) DaysInState(now time.Time) int {
	d := int(now.Sub(s.UpdatedAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// SubscriberKey identifies the subscriber for duplicate-active enforcement:
// the client ID when linked, otherwise the external subscriber email.
func (s *Subscription) SubscriberKey() string {
	if s.ClientID != nil {
		return s.ClientID.String()
	}
	if s.External != nil {
		return s.External.Email
	}
	return ""
}
