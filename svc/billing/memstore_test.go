package billing_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/svc/billing"
)

// memStore is an in-memory billing.Store used across the service tests.
// Atomically is not transactional here; tests exercise orchestration logic,
// not isolation.
type memStore struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*billing.Subscription
	plans  map[uuid.UUID]*billing.Plan
	coups  map[uuid.UUID]*billing.Coupon
	pays   map[uuid.UUID]*billing.Payment
	tokens map[string]*billing.CheckoutToken
}

func newMemStore() *memStore {
	return &memStore{
		subs:   make(map[uuid.UUID]*billing.Subscription),
		plans:  make(map[uuid.UUID]*billing.Plan),
		coups:  make(map[uuid.UUID]*billing.Coupon),
		pays:   make(map[uuid.UUID]*billing.Payment),
		tokens: make(map[string]*billing.CheckoutToken),
	}
}

func (m *memStore) Subscriptions() billing.SubscriptionStore { return (*memSubs)(m) }
func (m *memStore) Plans() billing.PlanStore                 { return (*memPlans)(m) }
func (m *memStore) Coupons() billing.CouponStore             { return (*memCoupons)(m) }
func (m *memStore) Payments() billing.PaymentStore           { return (*memPayments)(m) }
func (m *memStore) CheckoutTokens() billing.CheckoutTokenStore {
	return (*memTokens)(m)
}

func (m *memStore) Atomically(ctx context.Context, fn func(ctx context.Context, s billing.Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) addPlan(p *billing.Plan)     { m.plans[p.ID] = p }
func (m *memStore) addCoupon(c *billing.Coupon) { m.coups[c.ID] = c }

type memSubs memStore

func (m *memSubs) Get(_ context.Context, id uuid.UUID) (*billing.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *memSubs) Create(_ context.Context, sub *billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.subs {
		if other.VendorID == sub.VendorID &&
			other.PlanID == sub.PlanID &&
			other.SubscriberKey() == sub.SubscriberKey() &&
			!other.IsTerminal() {
			return billing.ErrDuplicateSubscription
		}
	}
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *memSubs) Update(_ context.Context, sub *billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return billing.ErrSubscriptionNotFound
	}
	sub.UpdatedAt = time.Now().UTC()
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *memSubs) ListByStatus(_ context.Context, vendorID uuid.UUID, status billing.Status) ([]*billing.Subscription, error) {
	return m.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == status
	}), nil
}

func (m *memSubs) ListNonTerminalForSubscriber(_ context.Context, vendorID uuid.UUID, key string) ([]*billing.Subscription, error) {
	return m.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.SubscriberKey() == key && !s.IsTerminal()
	}), nil
}

func (m *memSubs) ListUpcomingCharges(_ context.Context, vendorID uuid.UUID, day time.Time) ([]*billing.Subscription, error) {
	y, mo, d := day.Date()
	return m.filter(func(s *billing.Subscription) bool {
		if s.VendorID != vendorID || s.Status != billing.StatusActive || !s.AutoCharge || s.NextChargeAt == nil {
			return false
		}
		cy, cm, cd := s.NextChargeAt.Date()
		return cy == y && cm == mo && cd == d
	}), nil
}

func (m *memSubs) ListExpiredTrials(_ context.Context, vendorID uuid.UUID, asOf time.Time) ([]*billing.Subscription, error) {
	return m.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == billing.StatusTrial &&
			s.TrialEndsAt != nil && !s.TrialEndsAt.After(asOf)
	}), nil
}

func (m *memSubs) ListPendingOlderThan(_ context.Context, vendorID uuid.UUID, cutoff time.Time) ([]*billing.Subscription, error) {
	return m.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == billing.StatusPendingPayment &&
			s.CreatedAt.Before(cutoff)
	}), nil
}

func (m *memSubs) CompareAndSwapState(_ context.Context, id uuid.UUID, expectedVersion time.Time, mut billing.DunningMutation) (billing.CASOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return billing.CASNotFound, nil
	}
	if !sub.UpdatedAt.Equal(expectedVersion) ||
		sub.Status == billing.StatusActive || sub.Status == billing.StatusCancelled {
		return billing.CASLost, nil
	}
	sub.Status = mut.NewStatus
	if mut.GraceDeadline != nil {
		sub.GraceDeadline = mut.GraceDeadline
	}
	sub.UpdatedAt = time.Now().UTC()
	return billing.CASApplied, nil
}

func (m *memSubs) filter(keep func(*billing.Subscription) bool) []*billing.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.Subscription
	for _, s := range m.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memPlans memStore

func (m *memPlans) Get(_ context.Context, id uuid.UUID) (*billing.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, billing.ErrPlanNotFound
	}
	return p, nil
}

func (m *memPlans) GetByCode(_ context.Context, vendorID uuid.UUID, code string) (*billing.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.VendorID == vendorID && p.Code == code {
			return p, nil
		}
	}
	return nil, billing.ErrPlanNotFound
}

func (m *memPlans) List(_ context.Context, vendorID uuid.UUID) ([]*billing.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.Plan
	for _, p := range m.plans {
		if p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPlans) Upsert(_ context.Context, plan *billing.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	return nil
}

type memCoupons memStore

func (m *memCoupons) GetByCode(_ context.Context, vendorID uuid.UUID, code string) (*billing.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coups {
		if c.VendorID == vendorID && c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, billing.ErrCouponNotFound
}

func (m *memCoupons) Redeem(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coups[id]
	if !ok {
		return billing.ErrCouponNotFound
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return billing.ErrCouponExhausted
	}
	c.Uses++
	return nil
}

type memPayments memStore

func (m *memPayments) Get(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pays[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) Create(_ context.Context, p *billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.pays[p.ID] = &cp
	return nil
}

func (m *memPayments) Update(_ context.Context, p *billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pays[p.ID]; !ok {
		return billing.ErrPaymentNotFound
	}
	cp := *p
	m.pays[p.ID] = &cp
	return nil
}

func (m *memPayments) ListForSubscription(_ context.Context, subscriptionID uuid.UUID) ([]*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.Payment
	for _, p := range m.pays {
		if p.SubscriptionID == subscriptionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memTokens memStore

func (m *memTokens) Create(_ context.Context, t *billing.CheckoutToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *memTokens) GetByToken(_ context.Context, token string) (*billing.CheckoutToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, billing.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) Consume(_ context.Context, token string) (*billing.CheckoutToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, billing.ErrTokenNotFound
	}
	if t.Status != billing.TokenPending {
		return nil, billing.ErrTokenNotPending
	}
	t.Status = billing.TokenUsed
	cp := *t
	return &cp, nil
}

func (m *memTokens) Cancel(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return billing.ErrTokenNotFound
	}
	if t.Status != billing.TokenPending {
		return billing.ErrTokenNotPending
	}
	t.Status = billing.TokenCancelled
	return nil
}

func (m *memTokens) ExpirePending(_ context.Context, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.Status == billing.TokenPending && t.ExpiresAt.Before(asOf) {
			t.Status = billing.TokenExpired
			n++
		}
	}
	return n, nil
}
