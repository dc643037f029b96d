package billing

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrPaymentNotFound      = errors.New("payment not found")

	// ErrDuplicateSubscription is the conflict raised when a subscriber
	// already holds a non-terminal subscription for the same plan.
	ErrDuplicateSubscription = errors.New("subscriber already has an active subscription for this plan")

	ErrInvalidPeriod      = errors.New("invalid billing period")
	ErrMissingPeriodPrice = errors.New("plan has no price for the requested billing period")

	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
	ErrCouponExpired       = errors.New("coupon validity window has ended")
	ErrCouponNotYetValid   = errors.New("coupon validity window has not started")
	ErrCouponNotApplicable = errors.New("coupon does not apply to this plan")

	ErrTokenNotFound   = errors.New("checkout token not found")
	ErrTokenNotPending = errors.New("checkout token is no longer pending")
	ErrTokenExpired    = errors.New("checkout token has expired")

	// Strategy validation failures.
	ErrOperatorSelfSubscription = errors.New("operator organization cannot subscribe to itself")
	ErrNoLinkedClient           = errors.New("no client in the operator CRM is linked to the caller organization")
	ErrClientRequired           = errors.New("customer billing requires an explicit client id")
	ErrClientNotOwned           = errors.New("client does not belong to the caller organization")

	// ErrGateway wraps payment-provider failures. Never retried
	// synchronously; the polling fallback sweep reconciles later.
	ErrGateway = errors.New("payment gateway call failed")
)

// InvalidTransitionError is returned for a state change not present in the
// allowed-transition graph. It names both states so callers and logs can
// show exactly what was rejected.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid subscription state transition from '%s' to '%s'", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// IsConflict reports whether err is one of the conflict-class errors that
// callers may branch on ("already exists" vs "lost race").
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSubscription)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrCouponNotFound)
}
