package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/pkg/email"
	"github.com/citaplan/citaplan/svc/billing"
	"github.com/citaplan/citaplan/svc/dunning"
)

// RecipientDirectory resolves the contact email of a client record.
type RecipientDirectory interface {
	ClientEmail(ctx context.Context, clientID uuid.UUID) (string, error)
}

// Dispatcher sends billing lifecycle emails. It implements both
// billing.Notifier and the dunning engine's notifier; every failure is
// reduced to a NotifyResult so mail problems never break billing flows.
type Dispatcher struct {
	sender    email.EmailSender
	directory RecipientDirectory
	logger    *slog.Logger
	now       func() time.Time

	// product is the brand name rendered in subject lines and bodies.
	product string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithProductName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.product = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher. Panics on nil required dependencies.
func New(sender email.EmailSender, directory RecipientDirectory, opts ...Option) *Dispatcher {
	if sender == nil {
		panic("notification: email sender is required")
	}
	if directory == nil {
		panic("notification: recipient directory is required")
	}
	d := &Dispatcher{
		sender:    sender,
		directory: directory,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		product:   "CitaPlan",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) SendPaymentFailed(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.SendDunningNotice(ctx, sub, dunning.NoticePaymentFailed)
}

func (d *Dispatcher) SendPaymentSuccess(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.deliver(ctx, sub, "payment-success", paymentSuccessEmail(d.product, sub))
}

func (d *Dispatcher) SendGracePeriod(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.SendDunningNotice(ctx, sub, dunning.NoticeGracePeriod)
}

func (d *Dispatcher) SendSuspension(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.SendDunningNotice(ctx, sub, dunning.NoticeSuspension)
}

func (d *Dispatcher) SendCancellation(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.deliver(ctx, sub, "cancellation", cancellationEmail(d.product, sub))
}

func (d *Dispatcher) SendTrialEnding(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.deliver(ctx, sub, "trial-ending", trialEndingEmail(d.product, sub, d.now()))
}

func (d *Dispatcher) SendUpcomingCharge(ctx context.Context, sub *billing.Subscription) billing.NotifyResult {
	return d.deliver(ctx, sub, "upcoming-charge", upcomingChargeEmail(d.product, sub))
}

// SendDunningNotice renders the recovery-sequence email matching the
// notice. The overdue copy escalates with how deep into the sequence the
// subscription is.
func (d *Dispatcher) SendDunningNotice(ctx context.Context, sub *billing.Subscription, notice dunning.Notice) billing.NotifyResult {
	return d.deliver(ctx, sub, "dunning-"+string(notice), dunningEmail(d.product, sub, notice))
}

func (d *Dispatcher) deliver(ctx context.Context, sub *billing.Subscription, tag string, msg message) billing.NotifyResult {
	to, err := d.recipient(ctx, sub)
	if err != nil {
		d.logger.WarnContext(ctx, "notification recipient unresolved",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("tag", tag),
			slog.String("error", err.Error()))
		return billing.NotifyResult{Reason: "recipient unresolved: " + err.Error()}
	}

	params := email.SendEmailParams{
		SendTo:   to,
		Subject:  msg.subject,
		BodyHTML: msg.body,
		Tag:      tag,
	}
	if err := params.Validate(); err != nil {
		return billing.NotifyResult{Reason: err.Error()}
	}
	if err := d.sender.SendEmail(ctx, params); err != nil {
		d.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("tag", tag),
			slog.String("error", err.Error()))
		return billing.NotifyResult{Reason: err.Error()}
	}
	return billing.NotifyResult{Success: true}
}

func (d *Dispatcher) recipient(ctx context.Context, sub *billing.Subscription) (string, error) {
	if sub.External != nil && sub.External.Email != "" {
		return sub.External.Email, nil
	}
	if sub.ClientID != nil {
		return d.directory.ClientEmail(ctx, *sub.ClientID)
	}
	return "", billing.ErrClientRequired
}
