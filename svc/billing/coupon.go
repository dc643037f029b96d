package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// CouponKind distinguishes percentage discounts from fixed-amount ones.
type CouponKind string

const (
	CouponPercentage CouponKind = "percentage"
	CouponFixed      CouponKind = "fixed"
)

// Coupon is a vendor-scoped discount definition with a usage cap, validity
// window and an optional applicable-plan allowlist.
//
// Uses is a read-side snapshot; the authoritative counter lives in the store
// and is incremented with a check-then-increment inside the redemption
// transaction so it can never exceed MaxUses.
type Coupon struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	Code     string

	Kind  CouponKind
	Value int64 // percent (0-100) or a fixed amount in the smallest currency unit

	MaxUses int // 0 means uncapped
	Uses    int

	ValidFrom  *time.Time
	ValidUntil *time.Time

	// PlanIDs is the applicable-plan allowlist; empty means all plans.
	PlanIDs []uuid.UUID

	CreatedAt time.Time
}

// ValidateFor checks the coupon against a plan and a point in time.
// Exhaustion is checked here for early feedback, but the store re-checks it
// under the redemption transaction; this pre-check alone is not authoritative.
func (c *Coupon) ValidateFor(planID uuid.UUID, now time.Time) error {
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return ErrCouponExhausted
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponNotYetValid
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrCouponExpired
	}
	if len(c.PlanIDs) > 0 && !slices.Contains(c.PlanIDs, planID) {
		return ErrCouponNotApplicable
	}
	return nil
}

// Apply returns the discounted price, floored at zero. A 100% percentage
// coupon yields a zero price, which makes the checkout skip the gateway and
// create the subscription directly active.
func (c *Coupon) Apply(price Money) Money {
	discounted := price
	switch c.Kind {
	case CouponPercentage:
		discounted.Amount = price.Amount - (price.Amount*c.Value)/100
	case CouponFixed:
		discounted.Amount = price.Amount - c.Value
	}
	if discounted.Amount < 0 {
		discounted.Amount = 0
	}
	return discounted
}
