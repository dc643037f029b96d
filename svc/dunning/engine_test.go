package dunning_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaplan/citaplan/svc/billing"
	"github.com/citaplan/citaplan/svc/dunning"
)

type fakeSubs struct {
	mu   sync.Mutex
	now  func() time.Time
	rows map[uuid.UUID]*billing.Subscription
}

func newFakeSubs(now func() time.Time) *fakeSubs {
	return &fakeSubs{now: now, rows: make(map[uuid.UUID]*billing.Subscription)}
}

func (f *fakeSubs) add(sub *billing.Subscription) *billing.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[sub.ID] = sub
	return sub
}

func (f *fakeSubs) Get(_ context.Context, id uuid.UUID) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubs) Create(_ context.Context, sub *billing.Subscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubs) Update(_ context.Context, sub *billing.Subscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubs) ListByStatus(_ context.Context, vendorID uuid.UUID, status billing.Status) ([]*billing.Subscription, error) {
	return f.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == status
	}), nil
}

func (f *fakeSubs) ListNonTerminalForSubscriber(context.Context, uuid.UUID, string) ([]*billing.Subscription, error) {
	return nil, nil
}

func (f *fakeSubs) ListUpcomingCharges(_ context.Context, vendorID uuid.UUID, day time.Time) ([]*billing.Subscription, error) {
	y, m, d := day.Date()
	return f.filter(func(s *billing.Subscription) bool {
		if s.VendorID != vendorID || s.Status != billing.StatusActive || !s.AutoCharge || s.NextChargeAt == nil {
			return false
		}
		cy, cm, cd := s.NextChargeAt.Date()
		return cy == y && cm == m && cd == d
	}), nil
}

func (f *fakeSubs) ListExpiredTrials(_ context.Context, vendorID uuid.UUID, asOf time.Time) ([]*billing.Subscription, error) {
	return f.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == billing.StatusTrial &&
			s.TrialEndsAt != nil && !s.TrialEndsAt.After(asOf)
	}), nil
}

func (f *fakeSubs) ListPendingOlderThan(_ context.Context, vendorID uuid.UUID, cutoff time.Time) ([]*billing.Subscription, error) {
	return f.filter(func(s *billing.Subscription) bool {
		return s.VendorID == vendorID && s.Status == billing.StatusPendingPayment && s.CreatedAt.Before(cutoff)
	}), nil
}

func (f *fakeSubs) CompareAndSwapState(_ context.Context, id uuid.UUID, expectedVersion time.Time, m billing.DunningMutation) (billing.CASOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return billing.CASNotFound, nil
	}
	if !sub.UpdatedAt.Equal(expectedVersion) ||
		sub.Status == billing.StatusActive || sub.Status == billing.StatusCancelled {
		return billing.CASLost, nil
	}
	sub.Status = m.NewStatus
	if m.GraceDeadline != nil {
		sub.GraceDeadline = m.GraceDeadline
	}
	sub.UpdatedAt = f.now()
	return billing.CASApplied, nil
}

func (f *fakeSubs) filter(keep func(*billing.Subscription) bool) []*billing.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*billing.Subscription
	for _, s := range f.rows {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

type sentNotice struct {
	subID  uuid.UUID
	notice dunning.Notice
}

type fakeNotifier struct {
	notices  []sentNotice
	upcoming []uuid.UUID
	trials   []uuid.UUID
}

func (n *fakeNotifier) SendDunningNotice(_ context.Context, sub *billing.Subscription, notice dunning.Notice) billing.NotifyResult {
	n.notices = append(n.notices, sentNotice{subID: sub.ID, notice: notice})
	return billing.NotifyResult{Success: true}
}

func (n *fakeNotifier) SendUpcomingCharge(_ context.Context, sub *billing.Subscription) billing.NotifyResult {
	n.upcoming = append(n.upcoming, sub.ID)
	return billing.NotifyResult{Success: true}
}

func (n *fakeNotifier) SendTrialEnding(_ context.Context, sub *billing.Subscription) billing.NotifyResult {
	n.trials = append(n.trials, sub.ID)
	return billing.NotifyResult{Success: true}
}

type memMarkers struct {
	claimed map[string]bool
}

func (m *memMarkers) Claim(_ context.Context, key string) (bool, error) {
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

type dunningFixture struct {
	engine   *dunning.Engine
	subs     *fakeSubs
	notifier *fakeNotifier
	markers  *memMarkers
	vendor   uuid.UUID
	clock    time.Time
}

func newDunningFixture(t *testing.T) *dunningFixture {
	t.Helper()

	f := &dunningFixture{
		notifier: &fakeNotifier{},
		markers:  &memMarkers{},
		vendor:   uuid.New(),
		clock:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.subs = newFakeSubs(func() time.Time { return f.clock })
	f.engine = dunning.New(f.subs, f.notifier, f.vendor,
		dunning.WithMarkers(f.markers),
		dunning.WithClock(func() time.Time { return f.clock }),
	)
	return f
}

func (f *dunningFixture) pastDueSub(daysAgo int) *billing.Subscription {
	entered := f.clock.AddDate(0, 0, -daysAgo)
	return f.subs.add(&billing.Subscription{
		ID:        uuid.New(),
		VendorID:  f.vendor,
		PlanID:    uuid.New(),
		Status:    billing.StatusPastDue,
		External:  &billing.Subscriber{Email: "cliente@example.com"},
		CreatedAt: entered,
		UpdatedAt: entered,
	})
}

func noticesFor(n *fakeNotifier, id uuid.UUID) []dunning.Notice {
	var out []dunning.Notice
	for _, s := range n.notices {
		if s.subID == id {
			out = append(out, s.notice)
		}
	}
	return out
}

func TestEngine_PastDueSequence(t *testing.T) {
	t.Parallel()

	t.Run("day zero sends payment failed", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		sub := f.pastDueSub(0)

		sum := f.engine.Run(context.Background())
		assert.Equal(t, 1, sum.EmailsSent)
		assert.Zero(t, sum.TransitionsApplied)
		assert.Equal(t, []dunning.Notice{dunning.NoticePaymentFailed}, noticesFor(f.notifier, sub.ID))
	})

	t.Run("day three sends reminder", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		sub := f.pastDueSub(3)

		f.engine.Run(context.Background())
		assert.Equal(t, []dunning.Notice{dunning.NoticeReminder}, noticesFor(f.notifier, sub.ID))
	})

	t.Run("day seven escalates to grace period", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		sub := f.pastDueSub(7)

		sum := f.engine.Run(context.Background())
		assert.Equal(t, 1, sum.TransitionsApplied)
		assert.Equal(t, []dunning.Notice{dunning.NoticeGracePeriod}, noticesFor(f.notifier, sub.ID))

		got, err := f.subs.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusGracePeriod, got.Status)
		require.NotNil(t, got.GraceDeadline)
		assert.Equal(t, f.clock.AddDate(0, 0, 7), *got.GraceDeadline)
	})
}

func TestEngine_GraceSequence(t *testing.T) {
	t.Parallel()

	t.Run("urgent notice midway through grace", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		entered := f.clock.AddDate(0, 0, -3)
		deadline := entered.AddDate(0, 0, 7)
		sub := f.subs.add(&billing.Subscription{
			ID:            uuid.New(),
			VendorID:      f.vendor,
			Status:        billing.StatusGracePeriod,
			External:      &billing.Subscriber{Email: "cliente@example.com"},
			GraceDeadline: &deadline,
			UpdatedAt:     entered,
		})

		f.engine.Run(context.Background())
		assert.Equal(t, []dunning.Notice{dunning.NoticeUrgent}, noticesFor(f.notifier, sub.ID))
	})

	t.Run("expired deadline suspends", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		entered := f.clock.AddDate(0, 0, -8)
		deadline := entered.AddDate(0, 0, 7)
		sub := f.subs.add(&billing.Subscription{
			ID:            uuid.New(),
			VendorID:      f.vendor,
			Status:        billing.StatusGracePeriod,
			External:      &billing.Subscriber{Email: "cliente@example.com"},
			GraceDeadline: &deadline,
			UpdatedAt:     entered,
		})

		sum := f.engine.Run(context.Background())
		assert.Equal(t, 1, sum.TransitionsApplied)
		assert.Equal(t, []dunning.Notice{dunning.NoticeSuspension}, noticesFor(f.notifier, sub.ID))

		got, err := f.subs.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusSuspended, got.Status)
	})
}

func TestEngine_FullTimeline(t *testing.T) {
	t.Parallel()

	f := newDunningFixture(t)
	sub := f.pastDueSub(0)
	start := f.clock

	// Walk the clock a day at a time through the whole sequence.
	for day := 0; day <= 14; day++ {
		f.clock = start.AddDate(0, 0, day)
		f.engine.Run(context.Background())
	}

	assert.Equal(t, []dunning.Notice{
		dunning.NoticePaymentFailed, // day 0
		dunning.NoticeReminder,      // day 3
		dunning.NoticeGracePeriod,   // day 7
		dunning.NoticeUrgent,        // day 10
		dunning.NoticeSuspension,    // day 14, the deadline itself
	}, noticesFor(f.notifier, sub.ID))

	got, err := f.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSuspended, got.Status)
}

func TestEngine_MarkersDeduplicateReruns(t *testing.T) {
	t.Parallel()

	f := newDunningFixture(t)
	f.pastDueSub(0)

	first := f.engine.Run(context.Background())
	second := f.engine.Run(context.Background())

	assert.Equal(t, 1, first.EmailsSent)
	assert.Zero(t, second.EmailsSent)
	assert.Len(t, f.notifier.notices, 1)
}

// staleScanSubs simulates a concurrent writer landing between the sweep's
// scan and its conditional write: listings return row versions older than
// what the compare-and-swap will see.
type staleScanSubs struct {
	*fakeSubs
	skew time.Duration
}

func (s *staleScanSubs) ListByStatus(ctx context.Context, vendorID uuid.UUID, status billing.Status) ([]*billing.Subscription, error) {
	subs, err := s.fakeSubs.ListByStatus(ctx, vendorID, status)
	for _, sub := range subs {
		sub.UpdatedAt = sub.UpdatedAt.Add(-s.skew)
	}
	return subs, err
}

func TestEngine_LostLockSkips(t *testing.T) {
	t.Parallel()

	f := newDunningFixture(t)
	sub := f.pastDueSub(7)

	engine := dunning.New(&staleScanSubs{fakeSubs: f.subs, skew: time.Minute}, f.notifier, f.vendor,
		dunning.WithMarkers(f.markers),
		dunning.WithClock(func() time.Time { return f.clock }),
	)

	sum := engine.Run(context.Background())
	assert.Equal(t, 1, sum.LockLost)
	assert.Zero(t, sum.TransitionsApplied)
	assert.Empty(t, f.notifier.notices)

	got, err := f.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPastDue, got.Status)
}

func TestEngine_UpcomingChargeNotice(t *testing.T) {
	t.Parallel()

	f := newDunningFixture(t)
	chargeAt := f.clock.AddDate(0, 0, 3)
	sub := f.subs.add(&billing.Subscription{
		ID:           uuid.New(),
		VendorID:     f.vendor,
		Status:       billing.StatusActive,
		AutoCharge:   true,
		NextChargeAt: &chargeAt,
		External:     &billing.Subscriber{Email: "cliente@example.com"},
		UpdatedAt:    f.clock,
	})

	sum := f.engine.Run(context.Background())
	assert.Equal(t, 1, sum.EmailsSent)
	assert.Equal(t, []uuid.UUID{sub.ID}, f.notifier.upcoming)
}

func TestEngine_TrialSweeps(t *testing.T) {
	t.Parallel()

	t.Run("expired trial enters dunning", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		endsAt := f.clock.AddDate(0, 0, -1)
		sub := f.subs.add(&billing.Subscription{
			ID:          uuid.New(),
			VendorID:    f.vendor,
			Status:      billing.StatusTrial,
			Trial:       true,
			TrialEndsAt: &endsAt,
			External:    &billing.Subscriber{Email: "cliente@example.com"},
			UpdatedAt:   endsAt.AddDate(0, 0, -14),
		})

		sum := f.engine.Run(context.Background())
		assert.Equal(t, 1, sum.TransitionsApplied)

		got, err := f.subs.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
		assert.Equal(t, []dunning.Notice{dunning.NoticePaymentFailed}, noticesFor(f.notifier, sub.ID))
	})

	t.Run("trial ending soon gets a warning", func(t *testing.T) {
		t.Parallel()
		f := newDunningFixture(t)
		endsAt := f.clock.AddDate(0, 0, 2)
		sub := f.subs.add(&billing.Subscription{
			ID:          uuid.New(),
			VendorID:    f.vendor,
			Status:      billing.StatusTrial,
			Trial:       true,
			TrialEndsAt: &endsAt,
			External:    &billing.Subscriber{Email: "cliente@example.com"},
			UpdatedAt:   f.clock.AddDate(0, 0, -12),
		})

		f.engine.Run(context.Background())
		assert.Equal(t, []uuid.UUID{sub.ID}, f.notifier.trials)
	})
}
