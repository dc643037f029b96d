package dunning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/svc/billing"
)

// Notifier sends the emails the sweeps produce. Implementations must be
// best-effort; failures are reduced to a NotifyResult.
type Notifier interface {
	SendDunningNotice(ctx context.Context, sub *billing.Subscription, notice Notice) billing.NotifyResult
	SendUpcomingCharge(ctx context.Context, sub *billing.Subscription) billing.NotifyResult
	SendTrialEnding(ctx context.Context, sub *billing.Subscription) billing.NotifyResult
}

// RunSummary aggregates what one sweep run did.
type RunSummary struct {
	Scanned            int
	EmailsSent         int
	TransitionsApplied int
	LockLost           int
	Errors             int
}

// Engine runs the scheduled billing sweeps. All state changes go through
// the store's compare-and-swap path: the version read during the scan must
// still match at write time, so a webhook landing mid-sweep always wins and
// the engine just skips the row.
type Engine struct {
	subs     billing.SubscriptionStore
	notifier Notifier
	markers  Markers
	vendorID uuid.UUID
	schedule []Step

	logger *slog.Logger
	now    func() time.Time

	// itemDelay spaces out per-subscription work so a large sweep does not
	// monopolize the database or the mail provider.
	itemDelay time.Duration

	// chargeNoticeDays is how many days ahead the upcoming-charge and
	// trial-ending notices go out.
	chargeNoticeDays int
}

// Option configures an Engine.
type Option func(*Engine)

func WithMarkers(m Markers) Option {
	return func(e *Engine) {
		if m != nil {
			e.markers = m
		}
	}
}

func WithSchedule(schedule []Step) Option {
	return func(e *Engine) {
		if len(schedule) > 0 {
			e.schedule = schedule
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithItemDelay(d time.Duration) Option {
	return func(e *Engine) { e.itemDelay = d }
}

func WithChargeNoticeDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.chargeNoticeDays = days
		}
	}
}

// New creates a dunning engine for one vendor's subscription table.
// Panics on nil required dependencies.
func New(subs billing.SubscriptionStore, notifier Notifier, vendorID uuid.UUID, opts ...Option) *Engine {
	if subs == nil {
		panic("dunning: subscription store is required")
	}
	if notifier == nil {
		panic("dunning: notifier is required")
	}
	if vendorID == uuid.Nil {
		panic("dunning: vendor id is required")
	}

	e := &Engine{
		subs:             subs,
		notifier:         notifier,
		markers:          NopMarkers{},
		vendorID:         vendorID,
		schedule:         DefaultSchedule,
		logger:           slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		chargeNoticeDays: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes all sweep passes once and returns the run summary. Each
// subscription is handled independently: one bad row never aborts the run.
func (e *Engine) Run(ctx context.Context) RunSummary {
	var sum RunSummary
	started := e.now()

	e.sweepPastDue(ctx, &sum)
	e.sweepGrace(ctx, &sum)
	e.sweepUpcomingCharges(ctx, &sum)
	e.sweepTrials(ctx, &sum)

	e.logger.InfoContext(ctx, "dunning run finished",
		slog.Int("scanned", sum.Scanned),
		slog.Int("emails_sent", sum.EmailsSent),
		slog.Int("transitions_applied", sum.TransitionsApplied),
		slog.Int("lock_lost", sum.LockLost),
		slog.Int("errors", sum.Errors),
		slog.Duration("elapsed", e.now().Sub(started)))
	return sum
}

// sweepPastDue walks vencida subscriptions through the schedule: overdue
// emails by day, then the escalation into grace_period.
func (e *Engine) sweepPastDue(ctx context.Context, sum *RunSummary) {
	subs, err := e.subs.ListByStatus(ctx, e.vendorID, billing.StatusPastDue)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "list past-due subscriptions", slog.String("error", err.Error()))
		return
	}

	now := e.now()
	for _, sub := range subs {
		sum.Scanned++
		day := sub.DaysInState(now)

		if day >= graceEntryDay(e.schedule) {
			deadline := now.AddDate(0, 0, suspensionDay(e.schedule)-graceEntryDay(e.schedule))
			e.escalate(ctx, sum, sub, billing.DunningMutation{
				NewStatus:     billing.StatusGracePeriod,
				GraceDeadline: &deadline,
			}, NoticeGracePeriod)
		} else if notice, ok := e.dueNotice(day); ok {
			e.send(ctx, sum, sub, notice)
		}

		e.pause(ctx)
	}
}

// sweepGrace walks grace_period subscriptions: the urgent notice midway,
// then suspension once the deadline passes.
func (e *Engine) sweepGrace(ctx context.Context, sum *RunSummary) {
	subs, err := e.subs.ListByStatus(ctx, e.vendorID, billing.StatusGracePeriod)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "list grace-period subscriptions", slog.String("error", err.Error()))
		return
	}

	now := e.now()
	for _, sub := range subs {
		sum.Scanned++

		if sub.GraceExpiredAt(now) {
			e.escalate(ctx, sum, sub, billing.DunningMutation{
				NewStatus: billing.StatusSuspended,
			}, NoticeSuspension)
		} else {
			day := graceEntryDay(e.schedule) + sub.DaysInState(now)
			if notice, ok := e.dueNotice(day); ok {
				e.send(ctx, sum, sub, notice)
			}
		}

		e.pause(ctx)
	}
}

// sweepUpcomingCharges notifies active auto-charging subscribers a few days
// ahead of their next charge.
func (e *Engine) sweepUpcomingCharges(ctx context.Context, sum *RunSummary) {
	now := e.now()
	day := now.AddDate(0, 0, e.chargeNoticeDays)

	subs, err := e.subs.ListUpcomingCharges(ctx, e.vendorID, day)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "list upcoming charges", slog.String("error", err.Error()))
		return
	}

	for _, sub := range subs {
		sum.Scanned++
		if !e.claim(ctx, sub, "upcoming_charge", now) {
			continue
		}
		if res := e.notifier.SendUpcomingCharge(ctx, sub); res.Success {
			sum.EmailsSent++
		} else {
			sum.Errors++
			e.logNotifyFailure(ctx, sub, "upcoming_charge", res.Reason)
		}
		e.pause(ctx)
	}
}

// sweepTrials moves expired trials into vencida, which puts them at day
// zero of the dunning sequence, and warns trials ending soon.
func (e *Engine) sweepTrials(ctx context.Context, sum *RunSummary) {
	now := e.now()

	expired, err := e.subs.ListExpiredTrials(ctx, e.vendorID, now)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "list expired trials", slog.String("error", err.Error()))
	} else {
		for _, sub := range expired {
			sum.Scanned++
			e.escalate(ctx, sum, sub, billing.DunningMutation{
				NewStatus: billing.StatusPastDue,
			}, NoticePaymentFailed)
			e.pause(ctx)
		}
	}

	trials, err := e.subs.ListByStatus(ctx, e.vendorID, billing.StatusTrial)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "list trials", slog.String("error", err.Error()))
		return
	}
	cutoff := now.AddDate(0, 0, e.chargeNoticeDays)
	for _, sub := range trials {
		if sub.TrialEndsAt == nil || sub.TrialEndsAt.After(cutoff) || sub.TrialEndsAt.Before(now) {
			continue
		}
		sum.Scanned++
		if !e.claim(ctx, sub, "trial_ending", now) {
			continue
		}
		if res := e.notifier.SendTrialEnding(ctx, sub); res.Success {
			sum.EmailsSent++
		} else {
			sum.Errors++
			e.logNotifyFailure(ctx, sub, "trial_ending", res.Reason)
		}
		e.pause(ctx)
	}
}

// escalate applies a state change through the compare-and-swap path and, on
// success, sends the accompanying notice. A lost lock is logged and skipped:
// whoever won the race (usually a payment webhook) already decided the
// subscription's fate.
func (e *Engine) escalate(ctx context.Context, sum *RunSummary, sub *billing.Subscription, m billing.DunningMutation, notice Notice) {
	outcome, err := e.subs.CompareAndSwapState(ctx, sub.ID, sub.UpdatedAt, m)
	if err != nil {
		sum.Errors++
		e.logger.ErrorContext(ctx, "dunning state change failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("to", string(m.NewStatus)),
			slog.String("error", err.Error()))
		return
	}

	switch outcome {
	case billing.CASApplied:
		sum.TransitionsApplied++
		e.logger.InfoContext(ctx, "dunning state change applied",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("from", string(sub.Status)),
			slog.String("to", string(m.NewStatus)))
		sub.Status = m.NewStatus
		if m.GraceDeadline != nil {
			sub.GraceDeadline = m.GraceDeadline
		}
		e.send(ctx, sum, sub, notice)
	case billing.CASLost:
		sum.LockLost++
		e.logger.InfoContext(ctx, "dunning state change lost to concurrent writer",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("intended", string(m.NewStatus)))
	case billing.CASNotFound:
		sum.Errors++
		e.logger.WarnContext(ctx, "subscription disappeared mid-sweep",
			slog.String("subscription_id", sub.ID.String()))
	}
}

// send delivers a dunning notice once per day per subscription.
func (e *Engine) send(ctx context.Context, sum *RunSummary, sub *billing.Subscription, notice Notice) {
	now := e.now()
	if !e.claim(ctx, sub, string(notice), now) {
		return
	}
	if res := e.notifier.SendDunningNotice(ctx, sub, notice); res.Success {
		sum.EmailsSent++
	} else {
		sum.Errors++
		e.logNotifyFailure(ctx, sub, string(notice), res.Reason)
	}
}

// dueNotice returns the pure-email schedule step falling exactly on the
// given day. The sweeps run daily, so exact matching sends each notice
// once; the marker additionally keeps same-day reruns from resending it.
func (e *Engine) dueNotice(day int) (Notice, bool) {
	for _, step := range e.schedule {
		if step.Notice == "" || step.Escalate != EscalateNone {
			continue
		}
		if step.Day == day {
			return step.Notice, true
		}
	}
	return "", false
}

// claim is the best-effort marker check: a marker store failure never
// blocks a notice.
func (e *Engine) claim(ctx context.Context, sub *billing.Subscription, kind string, now time.Time) bool {
	ok, err := e.markers.Claim(ctx, markerKey(sub.ID.String(), Notice(kind), now))
	if err != nil {
		e.logger.WarnContext(ctx, "dunning marker claim failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("notice", kind),
			slog.String("error", err.Error()))
		return true
	}
	return ok
}

func (e *Engine) logNotifyFailure(ctx context.Context, sub *billing.Subscription, kind, reason string) {
	e.logger.WarnContext(ctx, "dunning notice failed",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("notice", kind),
		slog.String("reason", reason))
}

func (e *Engine) pause(ctx context.Context) {
	if e.itemDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.itemDelay):
	}
}
