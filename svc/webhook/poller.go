package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/svc/billing"
)

// Poller is the fallback for lost webhooks: it asks the gateway directly
// about subscriptions stuck in pendiente_pago and applies whatever the
// gateway reports. A delivery that never arrived is thereby reconciled on
// the next poll.
type Poller struct {
	subs    billing.SubscriptionStore
	gateway billing.Gateway
	billing LifecycleService
	vendor  uuid.UUID
	logger  *slog.Logger
	now     func() time.Time

	// minAge holds back freshly created checkouts; the subscriber may
	// still be on the payment page.
	minAge time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPollerMinAge(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.minAge = d
		}
	}
}

// NewPoller creates a poller. Panics on nil required dependencies.
func NewPoller(subs billing.SubscriptionStore, gateway billing.Gateway, svc LifecycleService, vendor uuid.UUID, opts ...PollerOption) *Poller {
	if subs == nil {
		panic("webhook: subscription store is required")
	}
	if gateway == nil {
		panic("webhook: gateway is required")
	}
	if svc == nil {
		panic("webhook: billing service is required")
	}
	p := &Poller{
		subs:    subs,
		gateway: gateway,
		billing: svc,
		vendor:  vendor,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		minAge:  15 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reconciles pending subscriptions once. Rows without a gateway
// subscription id (the checkout creation itself failed) are left alone
// until the token expiry sweep cleans them up.
func (p *Poller) Run(ctx context.Context) error {
	cutoff := p.now().Add(-p.minAge)
	pending, err := p.subs.ListPendingOlderThan(ctx, p.vendor, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "list pending subscriptions", slog.String("error", err.Error()))
		return err
	}

	for _, sub := range pending {
		if sub.GatewaySubID == "" {
			continue
		}
		log := p.logger.With(
			slog.String("subscription_id", sub.ID.String()),
			slog.String("gateway_sub_id", sub.GatewaySubID))

		remote, err := p.gateway.GetSubscription(ctx, sub.GatewaySubID)
		if err != nil {
			log.WarnContext(ctx, "gateway poll failed", slog.String("error", err.Error()))
			continue
		}

		switch remote.Status {
		case billing.GatewayAuthorized:
			if _, err := p.billing.Activate(ctx, sub.ID); err != nil {
				log.ErrorContext(ctx, "poll-driven activation failed", slog.String("error", err.Error()))
				continue
			}
			log.InfoContext(ctx, "subscription reconciled from gateway poll")
		case billing.GatewayCancelled:
			if _, err := p.billing.Cancel(ctx, sub.ID, webhookActor, "cancelled at gateway"); err != nil {
				log.ErrorContext(ctx, "poll-driven cancellation failed", slog.String("error", err.Error()))
				continue
			}
			log.InfoContext(ctx, "pending subscription cancelled from gateway poll")
		default:
			// Still pending at the gateway too; nothing to reconcile.
		}
	}
	return nil
}
