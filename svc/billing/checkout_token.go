package billing

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TokenStatus is the lifecycle of a checkout token: pending until consumed,
// then used, cancelled or expired. Never reusable once not pending.
type TokenStatus string

const (
	TokenPending   TokenStatus = "pending"
	TokenUsed      TokenStatus = "used"
	TokenCancelled TokenStatus = "cancelled"
	TokenExpired   TokenStatus = "expired"
)

// CheckoutToken is a single-use public capability binding a (client, plan,
// computed price, expiry). The public checkout surface looks it up by the
// opaque token value; consumption is a conditional update on status=pending
// so a token can be spent at most once.
type CheckoutToken struct {
	ID    uuid.UUID
	Token string

	VendorID uuid.UUID
	ClientID *uuid.UUID
	External *Subscriber
	PlanID   uuid.UUID
	Period   BillingPeriod
	Price    Money
	CouponID *uuid.UUID

	Status    TokenStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token's validity window has passed.
func (t *CheckoutToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// NewTokenValue generates an opaque, URL-safe capability token value.
func NewTokenValue() string {
	buf := make([]byte, 32)
	// rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
