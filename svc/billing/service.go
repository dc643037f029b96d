package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NotifyResult is the reduced outcome of a best-effort notification.
// Notification failures never propagate as errors to billing callers.
type NotifyResult struct {
	Success bool
	Reason  string
}

// Notifier sends lifecycle emails. Implementations must be best-effort:
// every failure is reduced to a NotifyResult, never raised.
type Notifier interface {
	SendPaymentFailed(ctx context.Context, sub *Subscription) NotifyResult
	SendPaymentSuccess(ctx context.Context, sub *Subscription) NotifyResult
	SendGracePeriod(ctx context.Context, sub *Subscription) NotifyResult
	SendSuspension(ctx context.Context, sub *Subscription) NotifyResult
	SendCancellation(ctx context.Context, sub *Subscription) NotifyResult
	SendTrialEnding(ctx context.Context, sub *Subscription) NotifyResult
	SendUpcomingCharge(ctx context.Context, sub *Subscription) NotifyResult
}

// Service implements the subscription lifecycle: checkout, the state
// transition engine, webhook-driven activation and cancellation, and the
// entitlement sync hook.
type Service struct {
	store        Store
	gateway      Gateway
	directory    ClientDirectory
	operatorID   uuid.UUID
	entitlements *EntitlementSyncer
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time

	tokenTTL time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the lifecycle notifier. Without one, notifications are skipped.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithEntitlementSyncer enables the module-entitlement sync hook on activation.
func WithEntitlementSyncer(es *EntitlementSyncer) ServiceOption {
	return func(s *Service) { s.entitlements = es }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenTTL overrides the checkout token validity window.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// NewService creates the billing service.
// Panics if required dependencies are nil to fail fast during initialization.
func NewService(store Store, gateway Gateway, directory ClientDirectory, operatorID uuid.UUID, opts ...ServiceOption) *Service {
	if store == nil {
		panic("billing: store is required")
	}
	if gateway == nil {
		panic("billing: gateway is required")
	}
	if directory == nil {
		panic("billing: client directory is required")
	}
	if operatorID == uuid.Nil {
		panic("billing: operator organization id is required")
	}

	s := &Service{
		store:      store,
		gateway:    gateway,
		directory:  directory,
		operatorID: operatorID,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		tokenTTL:   48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OperatorID returns the platform operator organization id.
func (s *Service) OperatorID() uuid.UUID { return s.operatorID }

// ChangeStateOptions carries optional metadata for a state change.
type ChangeStateOptions struct {
	Reason string
}

// ChangeState validates and applies a subscription state change through the
// generic transition graph. A self-transition is an idempotent no-op.
// Cancellation stamps the end date, the actor and the reason. Entering
// activa from trial or pendiente_pago triggers the entitlement sync.
func (s *Service) ChangeState(ctx context.Context, id uuid.UUID, newState Status, actor Actor, opts ChangeStateOptions) (*Subscription, error) {
	sub, err := s.store.Subscriptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status == newState {
		return sub, nil
	}

	if err := ValidateTransition(sub.Status, newState); err != nil {
		return nil, err
	}

	wasJoining := sub.Status == StatusTrial || sub.Status == StatusPendingPayment

	now := s.now()
	sub.Status = newState
	if newState == StatusCancelled {
		sub.CancelledAt = &now
		sub.CancelledBy = actor.ID
		sub.CancelReason = opts.Reason
	}

	if err := s.store.Subscriptions().Update(ctx, sub); err != nil {
		return nil, err
	}

	if newState == StatusActive && wasJoining {
		s.syncEntitlements(ctx, sub)
	}

	return sub, nil
}

// Cancel is a convenience wrapper moving a subscription to its terminal state.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Subscription, error) {
	sub, err := s.ChangeState(ctx, id, StatusCancelled, actor, ChangeStateOptions{Reason: reason})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, "cancellation", sub, func(n Notifier) NotifyResult {
		return n.SendCancellation(ctx, sub)
	})
	return sub, nil
}

// MarkPastDue moves a subscription to vencida after a failed payment. The
// day-zero email is owned by the dunning sweep, whose daily markers
// deduplicate it; sending here as well would double the notice.
func (s *Service) MarkPastDue(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.ChangeState(ctx, id, StatusPastDue, System, ChangeStateOptions{Reason: "payment failed"})
}

// CheckoutRequest describes a checkout attempt.
type CheckoutRequest struct {
	Context  CheckoutContext
	PlanCode string
	Period   BillingPeriod

	CouponCode string
	AutoCharge bool
	PayerEmail string

	SuccessURL string
	CancelURL  string
}

// CheckoutResult is what the checkout surface renders back to the caller.
type CheckoutResult struct {
	Subscription *Subscription
	Token        *CheckoutToken // set when a hosted checkout is pending
	CheckoutURL  string
	BillingType  BillingType
	FinalPrice   Money
}

// Checkout runs the full checkout flow: strategy selection and validation,
// plan and price resolution, coupon application, duplicate-active
// enforcement, and either direct activation (zero final price) or gateway
// checkout creation.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if !req.Period.Valid() {
		return nil, ErrInvalidPeriod
	}

	cc := req.Context
	if cc.OperatorID == uuid.Nil {
		cc.OperatorID = s.operatorID
	}

	strategy := SelectStrategy(cc, s.directory)
	if err := strategy.ValidateSubscriber(ctx, cc); err != nil {
		return nil, err
	}

	vendorID := strategy.VendorID(cc)
	clientID, err := strategy.ClientID(ctx, cc)
	if err != nil {
		return nil, err
	}
	external := strategy.ExternalSubscriberPayload(cc)

	plan, err := s.store.Plans().GetByCode(ctx, vendorID, req.PlanCode)
	if err != nil {
		return nil, err
	}

	price, ok := plan.Price(req.Period)
	if !ok {
		return nil, ErrMissingPeriodPrice
	}

	now := s.now()
	final := price
	var coupon *Coupon
	if req.CouponCode != "" {
		coupon, err = s.store.Coupons().GetByCode(ctx, vendorID, req.CouponCode)
		if err != nil {
			return nil, err
		}
		if err := coupon.ValidateFor(plan.ID, now); err != nil {
			return nil, err
		}
		final = coupon.Apply(price)
	}

	sub := &Subscription{
		ID:           uuid.New(),
		VendorID:     vendorID,
		PlanID:       plan.ID,
		Period:       req.Period,
		CurrentPrice: final,
		AutoCharge:   req.AutoCharge,
		Gateway:      s.gateway.Name(),
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if clientID != uuid.Nil {
		sub.ClientID = &clientID
	} else {
		sub.External = external
	}
	if coupon != nil {
		sub.CouponID = &coupon.ID
	}

	if err := s.ensureNoDuplicate(ctx, sub); err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		Subscription: sub,
		BillingType:  strategy.BillingType(),
		FinalPrice:   final,
	}

	// A zero final price (cash coupon case) activates immediately: no
	// gateway involvement, no nonzero payment row.
	if final.IsZero() {
		next := now.AddDate(0, req.Period.Months(), 0)
		sub.Status = StatusActive
		sub.NextChargeAt = &next
		sub.MonthsActive = 1

		err := s.store.Atomically(ctx, func(ctx context.Context, st Store) error {
			if coupon != nil {
				if err := st.Coupons().Redeem(ctx, coupon.ID); err != nil {
					return err
				}
			}
			return st.Subscriptions().Create(ctx, sub)
		})
		if err != nil {
			return nil, err
		}

		s.syncEntitlements(ctx, sub)
		s.logger.InfoContext(ctx, "subscription activated at checkout",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("billing_type", string(result.BillingType)),
			slog.String("plan", plan.Code))
		return result, nil
	}

	if plan.TrialDays > 0 {
		trialEnd := plan.TrialEndsAt(now)
		sub.Status = StatusTrial
		sub.Trial = true
		sub.TrialEndsAt = &trialEnd

		err := s.store.Atomically(ctx, func(ctx context.Context, st Store) error {
			if coupon != nil {
				if err := st.Coupons().Redeem(ctx, coupon.ID); err != nil {
					return err
				}
			}
			return st.Subscriptions().Create(ctx, sub)
		})
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "trial subscription created",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("billing_type", string(result.BillingType)),
			slog.Time("trial_ends_at", trialEnd))
		return result, nil
	}

	// Paid checkout: persist the subscription first so the gateway carries
	// our reference, then attach the gateway ids and the capability token.
	sub.Status = StatusPendingPayment
	err = s.store.Atomically(ctx, func(ctx context.Context, st Store) error {
		if coupon != nil {
			if err := st.Coupons().Redeem(ctx, coupon.ID); err != nil {
				return err
			}
		}
		return st.Subscriptions().Create(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	payerEmail := req.PayerEmail
	if s.gateway.SandboxMode() {
		payerEmail = s.gateway.TestPayerEmail()
	}
	checkout, err := s.gateway.CreateSubscription(ctx, GatewaySubscriptionSpec{
		Reference:  sub.ID.String(),
		PlanName:   plan.Code,
		Amount:     final,
		Period:     req.Period,
		PayerEmail: payerEmail,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		// Never retried synchronously; the subscription stays pending and the
		// polling fallback reconciles once the gateway recovers.
		return nil, fmt.Errorf("create gateway subscription for %s: %w", sub.ID, err)
	}

	token := &CheckoutToken{
		ID:        uuid.New(),
		Token:     NewTokenValue(),
		VendorID:  vendorID,
		ClientID:  sub.ClientID,
		External:  sub.External,
		PlanID:    plan.ID,
		Period:    req.Period,
		Price:     final,
		CouponID:  sub.CouponID,
		Status:    TokenPending,
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}

	payment := &Payment{
		ID:             uuid.New(),
		VendorID:       vendorID,
		SubscriptionID: sub.ID,
		Amount:         final,
		Status:         PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sub.GatewaySubID = checkout.SubscriptionID
	err = s.store.Atomically(ctx, func(ctx context.Context, st Store) error {
		if err := st.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}
		if err := st.Payments().Create(ctx, payment); err != nil {
			return err
		}
		return st.CheckoutTokens().Create(ctx, token)
	})
	if err != nil {
		return nil, err
	}

	result.Token = token
	result.CheckoutURL = checkout.CheckoutURL
	s.logger.InfoContext(ctx, "gateway checkout created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("billing_type", string(result.BillingType)),
		slog.String("gateway", s.gateway.Name()),
		slog.Bool("sandbox", s.gateway.SandboxMode()))
	return result, nil
}

// Activate confirms payment for a subscription: it moves it to activa,
// advances the next charge date by one billing cadence, increments the
// months-active counter, settles the pending payment row, and cancels any
// other joining subscription the same subscriber holds for a different plan
// (upgrade-cancel-previous). All row changes share one transaction.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Subscriptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status == StatusActive {
		return sub, nil
	}
	if err := ValidateTransition(sub.Status, StatusActive); err != nil {
		return nil, err
	}

	wasJoining := sub.Status == StatusTrial || sub.Status == StatusPendingPayment
	now := s.now()

	next := now.AddDate(0, sub.Period.Months(), 0)
	sub.Status = StatusActive
	sub.NextChargeAt = &next
	sub.GraceDeadline = nil
	sub.MonthsActive++
	sub.TotalPaid += sub.CurrentPrice.Amount

	err = s.store.Atomically(ctx, func(ctx context.Context, st Store) error {
		if err := st.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}

		if err := s.settlePayment(ctx, st, sub, now); err != nil {
			return err
		}

		// Upgrade semantics: paying for one plan abandons any other joining
		// subscription the subscriber still holds.
		others, err := st.Subscriptions().ListNonTerminalForSubscriber(ctx, sub.VendorID, sub.SubscriberKey())
		if err != nil {
			return err
		}
		for _, other := range others {
			if other.ID == sub.ID || other.PlanID == sub.PlanID {
				continue
			}
			if other.Status != StatusTrial && other.Status != StatusPendingPayment {
				continue
			}
			other.Status = StatusCancelled
			other.CancelledAt = &now
			other.CancelledBy = System.ID
			other.CancelReason = "superseded by upgrade"
			if err := st.Subscriptions().Update(ctx, other); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wasJoining {
		s.syncEntitlements(ctx, sub)
	}
	s.notify(ctx, "payment_success", sub, func(n Notifier) NotifyResult {
		return n.SendPaymentSuccess(ctx, sub)
	})

	s.logger.InfoContext(ctx, "subscription activated",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int("months_active", sub.MonthsActive))
	return sub, nil
}

// settlePayment completes the oldest pending payment row for the
// subscription, or records a completed payment when none is pending.
func (s *Service) settlePayment(ctx context.Context, st Store, sub *Subscription, now time.Time) error {
	payments, err := st.Payments().ListForSubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if p.Status == PaymentPending {
			p.Status = PaymentCompleted
			p.UpdatedAt = now
			return st.Payments().Update(ctx, p)
		}
	}
	return st.Payments().Create(ctx, &Payment{
		ID:             uuid.New(),
		VendorID:       sub.VendorID,
		SubscriptionID: sub.ID,
		Amount:         sub.CurrentPrice,
		Status:         PaymentCompleted,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// ensureNoDuplicate enforces the one-non-terminal-subscription-per-plan
// invariant ahead of insert; the store's unique index is the authoritative
// guard under concurrency.
func (s *Service) ensureNoDuplicate(ctx context.Context, sub *Subscription) error {
	key := sub.SubscriberKey()
	if key == "" {
		return ErrClientRequired
	}
	existing, err := s.store.Subscriptions().ListNonTerminalForSubscriber(ctx, sub.VendorID, key)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.PlanID == sub.PlanID {
			return ErrDuplicateSubscription
		}
	}
	return nil
}

// syncEntitlements maps the plan's features onto the subscriber's linked
// organization module flags. Best-effort: failures are logged, not raised.
func (s *Service) syncEntitlements(ctx context.Context, sub *Subscription) {
	if s.entitlements == nil || sub.ClientID == nil {
		return
	}

	orgID, ok, err := s.directory.LinkedOrganization(ctx, *sub.ClientID)
	if err != nil {
		s.logger.WarnContext(ctx, "entitlement sync: linked organization lookup failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}

	plan, err := s.store.Plans().Get(ctx, sub.PlanID)
	if err != nil {
		s.logger.WarnContext(ctx, "entitlement sync: plan lookup failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := s.entitlements.Sync(ctx, orgID, plan); err != nil {
		s.logger.WarnContext(ctx, "entitlement sync failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("tenant_id", orgID.String()),
			slog.String("error", err.Error()))
	}
}

// notify runs a notification best-effort and logs failures.
func (s *Service) notify(ctx context.Context, kind string, sub *Subscription, fn func(Notifier) NotifyResult) {
	if s.notifier == nil {
		return
	}
	if res := fn(s.notifier); !res.Success {
		s.logger.WarnContext(ctx, "lifecycle notification failed",
			slog.String("notification", kind),
			slog.String("subscription_id", sub.ID.String()),
			slog.String("reason", res.Reason))
	}
}
