package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaplan/citaplan/svc/billing"
)

type fakeGateway struct {
	sandbox    bool
	createErr  error
	created    []billing.GatewaySubscriptionSpec
	remote     map[string]*billing.GatewaySubscription
	nextSubID  string
	checkoutTo string
}

func (g *fakeGateway) Name() string { return "paddle" }

func (g *fakeGateway) CreateSubscription(_ context.Context, spec billing.GatewaySubscriptionSpec) (*billing.GatewayCheckout, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, spec)
	id := g.nextSubID
	if id == "" {
		id = "sub_" + spec.Reference
	}
	url := g.checkoutTo
	if url == "" {
		url = "https://pay.example.com/" + id
	}
	return &billing.GatewayCheckout{SubscriptionID: id, CheckoutURL: url}, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*billing.GatewaySubscription, error) {
	sub, ok := g.remote[id]
	if !ok {
		return nil, billing.ErrGateway
	}
	return sub, nil
}

func (g *fakeGateway) SandboxMode() bool      { return g.sandbox }
func (g *fakeGateway) TestPayerEmail() string { return "sandbox-payer@example.com" }

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) record(kind string) billing.NotifyResult {
	n.sent = append(n.sent, kind)
	return billing.NotifyResult{Success: true}
}

func (n *recordingNotifier) SendPaymentFailed(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("payment_failed")
}
func (n *recordingNotifier) SendPaymentSuccess(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("payment_success")
}
func (n *recordingNotifier) SendGracePeriod(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("grace_period")
}
func (n *recordingNotifier) SendSuspension(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("suspension")
}
func (n *recordingNotifier) SendCancellation(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("cancellation")
}
func (n *recordingNotifier) SendTrialEnding(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("trial_ending")
}
func (n *recordingNotifier) SendUpcomingCharge(_ context.Context, _ *billing.Subscription) billing.NotifyResult {
	return n.record("upcoming_charge")
}

type serviceFixture struct {
	svc      *billing.Service
	store    *memStore
	gateway  *fakeGateway
	notifier *recordingNotifier
	dir      *fakeDirectory

	operator uuid.UUID
	caller   uuid.UUID
	client   uuid.UUID
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		store:    newMemStore(),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		operator: uuid.New(),
		caller:   uuid.New(),
		client:   uuid.New(),
		now:      time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}
	f.dir = &fakeDirectory{
		linkedClients: map[uuid.UUID]uuid.UUID{f.caller: f.client},
		ownership:     map[uuid.UUID]uuid.UUID{},
		linkedOrgs:    map[uuid.UUID]uuid.UUID{f.client: f.caller},
	}
	f.svc = billing.NewService(f.store, f.gateway, f.dir, f.operator,
		billing.WithNotifier(f.notifier),
		billing.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *serviceFixture) addPlan(code string, trialDays int, monthly int64) *billing.Plan {
	plan := &billing.Plan{
		ID:       uuid.New(),
		VendorID: f.operator,
		Code:     code,
		Name:     code,
		Prices: map[billing.BillingPeriod]billing.Money{
			billing.PeriodMonthly: {Amount: monthly, Currency: "MXN"},
		},
		TrialDays: trialDays,
		Features:  []billing.Feature{billing.FeatureAgenda, billing.FeatureReminders},
		Public:    true,
	}
	f.store.addPlan(plan)
	return plan
}

func platformCheckout(f *serviceFixture, planCode string) billing.CheckoutRequest {
	return billing.CheckoutRequest{
		Context:    billing.CheckoutContext{CallerID: f.caller, OperatorID: f.operator},
		PlanCode:   planCode,
		Period:     billing.PeriodMonthly,
		PayerEmail: "owner@example.com",
		SuccessURL: "https://app.example.com/billing/done",
	}
}

func TestService_Checkout_PaidPlan(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	res, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)

	sub := res.Subscription
	assert.Equal(t, billing.StatusPendingPayment, sub.Status)
	assert.Equal(t, f.operator, sub.VendorID)
	require.NotNil(t, sub.ClientID)
	assert.Equal(t, f.client, *sub.ClientID)
	assert.Equal(t, int64(49900), res.FinalPrice.Amount)
	assert.Equal(t, billing.BillingTypePlatform, res.BillingType)

	assert.NotEmpty(t, res.CheckoutURL)
	require.NotNil(t, res.Token)
	assert.Equal(t, billing.TokenPending, res.Token.Status)
	assert.Equal(t, f.now.Add(48*time.Hour), res.Token.ExpiresAt)

	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, sub.ID.String(), f.gateway.created[0].Reference)
	assert.Equal(t, "owner@example.com", f.gateway.created[0].PayerEmail)

	payments, err := f.store.Payments().ListForSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentPending, payments[0].Status)
}

func TestService_Checkout_TrialPlan(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("starter", 14, 19900)

	res, err := f.svc.Checkout(context.Background(), platformCheckout(f, "starter"))
	require.NoError(t, err)

	sub := res.Subscription
	assert.Equal(t, billing.StatusTrial, sub.Status)
	assert.True(t, sub.Trial)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, f.now.AddDate(0, 0, 14), *sub.TrialEndsAt)

	assert.Nil(t, res.Token)
	assert.Empty(t, res.CheckoutURL)
	assert.Empty(t, f.gateway.created)
}

func TestService_Checkout_FullCouponActivatesDirectly(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	plan := f.addPlan("pro", 0, 49900)
	f.store.addCoupon(&billing.Coupon{
		ID:       uuid.New(),
		VendorID: f.operator,
		Code:     "LANZAMIENTO",
		Kind:     billing.CouponPercentage,
		Value:    100,
		MaxUses:  10,
	})

	req := platformCheckout(f, "pro")
	req.CouponCode = "LANZAMIENTO"

	res, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	sub := res.Subscription
	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.True(t, res.FinalPrice.IsZero())
	assert.Equal(t, 1, sub.MonthsActive)
	require.NotNil(t, sub.NextChargeAt)
	assert.Equal(t, f.now.AddDate(0, 1, 0), *sub.NextChargeAt)
	assert.Equal(t, plan.ID, sub.PlanID)

	assert.Empty(t, f.gateway.created)
	assert.Nil(t, res.Token)

	coupon, err := f.store.Coupons().GetByCode(context.Background(), f.operator, "LANZAMIENTO")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.Uses)
}

func TestService_Checkout_InvalidInputs(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	t.Run("unknown period", func(t *testing.T) {
		req := platformCheckout(f, "pro")
		req.Period = billing.BillingPeriod("weekly")
		_, err := f.svc.Checkout(context.Background(), req)
		require.ErrorIs(t, err, billing.ErrInvalidPeriod)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := f.svc.Checkout(context.Background(), platformCheckout(f, "enterprise"))
		require.ErrorIs(t, err, billing.ErrPlanNotFound)
	})

	t.Run("missing period price", func(t *testing.T) {
		req := platformCheckout(f, "pro")
		req.Period = billing.PeriodAnnual
		_, err := f.svc.Checkout(context.Background(), req)
		require.ErrorIs(t, err, billing.ErrMissingPeriodPrice)
	})

	t.Run("operator cannot subscribe to itself", func(t *testing.T) {
		req := platformCheckout(f, "pro")
		req.Context.CallerID = f.operator
		_, err := f.svc.Checkout(context.Background(), req)
		require.ErrorIs(t, err, billing.ErrOperatorSelfSubscription)
	})

	t.Run("expired coupon", func(t *testing.T) {
		until := f.now.Add(-time.Hour)
		f.store.addCoupon(&billing.Coupon{
			ID:         uuid.New(),
			VendorID:   f.operator,
			Code:       "VIEJO",
			Kind:       billing.CouponPercentage,
			Value:      50,
			ValidUntil: &until,
		})
		req := platformCheckout(f, "pro")
		req.CouponCode = "VIEJO"
		_, err := f.svc.Checkout(context.Background(), req)
		require.ErrorIs(t, err, billing.ErrCouponExpired)
	})
}

func TestService_Checkout_DuplicateActive(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	_, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.ErrorIs(t, err, billing.ErrDuplicateSubscription)
}

func TestService_Checkout_GatewayFailureLeavesPending(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)
	f.gateway.createErr = errors.New("paddle unavailable")

	_, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.Error(t, err)

	// The row stays pendiente_pago for the polling fallback to reconcile.
	pending, err := f.store.Subscriptions().ListPendingOlderThan(
		context.Background(), f.operator, f.now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].GatewaySubID)
}

func TestService_Checkout_SandboxSwapsPayerEmail(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)
	f.gateway.sandbox = true

	_, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)

	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, "sandbox-payer@example.com", f.gateway.created[0].PayerEmail)
}

func TestService_Activate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	res, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)

	sub, err := f.svc.Activate(context.Background(), res.Subscription.ID)
	require.NoError(t, err)

	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.Equal(t, 1, sub.MonthsActive)
	assert.Equal(t, int64(49900), sub.TotalPaid)
	require.NotNil(t, sub.NextChargeAt)
	assert.Equal(t, f.now.AddDate(0, 1, 0), *sub.NextChargeAt)
	assert.Nil(t, sub.GraceDeadline)

	payments, err := f.store.Payments().ListForSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentCompleted, payments[0].Status)

	assert.Contains(t, f.notifier.sent, "payment_success")

	// Second activation is an idempotent no-op.
	again, err := f.svc.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.MonthsActive)
	assert.Equal(t, int64(49900), again.TotalPaid)
}

func TestService_Activate_CancelsSupersededSubscription(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("starter", 14, 19900)
	f.addPlan("pro", 0, 49900)

	trialRes, err := f.svc.Checkout(context.Background(), platformCheckout(f, "starter"))
	require.NoError(t, err)
	proRes, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), proRes.Subscription.ID)
	require.NoError(t, err)

	trial, err := f.store.Subscriptions().Get(context.Background(), trialRes.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, trial.Status)
	assert.Equal(t, "superseded by upgrade", trial.CancelReason)
	assert.NotNil(t, trial.CancelledAt)
}

func TestService_ChangeState(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	res, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)
	id := res.Subscription.ID
	actor := billing.Actor{ID: "admin-1", Kind: "user"}

	t.Run("invalid transition rejected", func(t *testing.T) {
		_, err := f.svc.ChangeState(context.Background(), id, billing.StatusPaused, actor, billing.ChangeStateOptions{})
		require.Error(t, err)
		assert.True(t, billing.IsInvalidTransition(err))
	})

	t.Run("self transition is a no-op", func(t *testing.T) {
		sub, err := f.svc.ChangeState(context.Background(), id, billing.StatusPendingPayment, actor, billing.ChangeStateOptions{})
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPendingPayment, sub.Status)
	})

	t.Run("cancellation stamps metadata and is terminal", func(t *testing.T) {
		sub, err := f.svc.Cancel(context.Background(), id, actor, "client request")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, sub.Status)
		assert.Equal(t, "client request", sub.CancelReason)
		assert.Equal(t, "admin-1", sub.CancelledBy)
		require.NotNil(t, sub.CancelledAt)
		assert.Contains(t, f.notifier.sent, "cancellation")

		_, err = f.svc.ChangeState(context.Background(), id, billing.StatusActive, actor, billing.ChangeStateOptions{})
		require.Error(t, err)
		assert.True(t, billing.IsInvalidTransition(err))
	})
}

func TestService_MarkPastDue(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.addPlan("pro", 0, 49900)

	res, err := f.svc.Checkout(context.Background(), platformCheckout(f, "pro"))
	require.NoError(t, err)
	_, err = f.svc.Activate(context.Background(), res.Subscription.ID)
	require.NoError(t, err)

	sub, err := f.svc.MarkPastDue(context.Background(), res.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPastDue, sub.Status)

	// The day-zero notice belongs to the dunning sweep and its markers;
	// marking past due must not send a competing copy.
	assert.NotContains(t, f.notifier.sent, "payment_failed")
}

func TestService_Checkout_ExternalSubscriber(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	vendor := f.caller
	plan := &billing.Plan{
		ID:       uuid.New(),
		VendorID: vendor,
		Code:     "membresia",
		Name:     "Membresía mensual",
		Prices: map[billing.BillingPeriod]billing.Money{
			billing.PeriodMonthly: {Amount: 9900, Currency: "MXN"},
		},
	}
	f.store.addPlan(plan)

	req := billing.CheckoutRequest{
		Context: billing.CheckoutContext{
			CallerID:        vendor,
			CustomerBilling: true,
			External:        &billing.Subscriber{Name: "Ana Torres", Email: "ana@example.com"},
		},
		PlanCode:   "membresia",
		Period:     billing.PeriodMonthly,
		PayerEmail: "ana@example.com",
	}

	res, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	sub := res.Subscription
	assert.Equal(t, billing.BillingTypeCustomer, res.BillingType)
	assert.Equal(t, vendor, sub.VendorID)
	assert.Nil(t, sub.ClientID)
	require.NotNil(t, sub.External)
	assert.Equal(t, "ana@example.com", sub.External.Email)
	assert.Equal(t, "ana@example.com", sub.SubscriberKey())
}
