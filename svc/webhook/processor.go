package webhook

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/citaplan/citaplan/svc/billing"
)

// Event is a normalized gateway notification. Reference carries our
// subscription id, echoed back from checkout custom data. RequestID is the
// gateway's delivery id; deliveries without one cannot be deduplicated and
// are processed unguarded.
type Event struct {
	Gateway   string
	RequestID string
	EventType string
	Reference string
	Status    billing.GatewayStatus
}

// LifecycleService is the slice of the billing service webhook processing
// drives. Satisfied by *billing.Service.
type LifecycleService interface {
	Activate(ctx context.Context, id uuid.UUID) (*billing.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID, actor billing.Actor, reason string) (*billing.Subscription, error)
	MarkPastDue(ctx context.Context, id uuid.UUID) (*billing.Subscription, error)
}

// Processor turns gateway events into subscription state changes, guarded
// by the idempotency ledger.
type Processor struct {
	ledger  Ledger
	billing LifecycleService
	logger  *slog.Logger
}

// NewProcessor creates a processor. Panics on nil required dependencies.
func NewProcessor(ledger Ledger, svc LifecycleService, opts ...ProcessorOption) *Processor {
	if ledger == nil {
		panic("webhook: ledger is required")
	}
	if svc == nil {
		panic("webhook: billing service is required")
	}
	p := &Processor{ledger: ledger, billing: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// webhookActor is recorded on cancellations driven by gateway events.
var webhookActor = billing.Actor{ID: "gateway", Kind: "webhook"}

// GatewayPastDue marks deliveries reporting a failed renewal charge. It is
// an ingress-local value: the gateway client's polled statuses stay
// authorized/cancelled/pending.
const GatewayPastDue billing.GatewayStatus = "past_due"

// Claim records the delivery's write-once ledger claim before any state
// change. A nil receipt means the pair was already claimed and the delivery
// is a duplicate. The conflict-safe insert doubles as the duplicate check.
func (p *Processor) Claim(ctx context.Context, ev Event) (*Receipt, error) {
	return p.ledger.Record(ctx, &Receipt{
		Gateway:   ev.Gateway,
		RequestID: ev.RequestID,
		EventType: ev.EventType,
		Outcome:   OutcomeReceived,
	})
}

// Resolve applies the event's lifecycle action and settles the claimed
// receipt with the final outcome.
func (p *Processor) Resolve(ctx context.Context, receipt *Receipt, ev Event) Outcome {
	log := p.eventLogger(ev)

	outcome, detail := p.apply(ctx, ev, log)
	if err := p.ledger.Resolve(ctx, receipt.ID, outcome, detail); err != nil {
		log.ErrorContext(ctx, "settling receipt failed", slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "webhook processed", slog.String("outcome", string(outcome)))
	return outcome
}

// Process handles one event end to end: ledger claim, state change,
// settlement. Events without a request id cannot be claimed and are applied
// unguarded, relying on the state machine's idempotency.
func (p *Processor) Process(ctx context.Context, ev Event) Outcome {
	log := p.eventLogger(ev)

	if ev.RequestID == "" {
		log.WarnContext(ctx, "delivery without request id, processing unguarded")
		outcome, _ := p.apply(ctx, ev, log)
		log.InfoContext(ctx, "webhook processed", slog.String("outcome", string(outcome)))
		return outcome
	}

	receipt, err := p.Claim(ctx, ev)
	if err != nil {
		log.ErrorContext(ctx, "ledger claim failed", slog.String("error", err.Error()))
		return OutcomeError
	}
	if receipt == nil {
		log.InfoContext(ctx, "duplicate delivery skipped")
		return OutcomeDuplicate
	}
	return p.Resolve(ctx, receipt, ev)
}

func (p *Processor) eventLogger(ev Event) *slog.Logger {
	return p.logger.With(
		slog.String("gateway", ev.Gateway),
		slog.String("request_id", ev.RequestID),
		slog.String("event_type", ev.EventType),
		slog.String("reference", ev.Reference))
}

func (p *Processor) apply(ctx context.Context, ev Event, log *slog.Logger) (Outcome, string) {
	if ev.Reference == "" {
		return OutcomeIgnored, "no subscription reference"
	}
	id, err := uuid.Parse(ev.Reference)
	if err != nil {
		return OutcomeIgnored, "malformed subscription reference"
	}

	switch ev.Status {
	case billing.GatewayAuthorized:
		if _, err := p.billing.Activate(ctx, id); err != nil {
			if billing.IsInvalidTransition(err) || billing.IsNotFound(err) {
				return OutcomeSkipped, err.Error()
			}
			log.ErrorContext(ctx, "activation failed", slog.String("error", err.Error()))
			return OutcomeError, err.Error()
		}
		return OutcomeSuccess, ""

	case billing.GatewayCancelled:
		if _, err := p.billing.Cancel(ctx, id, webhookActor, "cancelled at gateway"); err != nil {
			if billing.IsInvalidTransition(err) || billing.IsNotFound(err) {
				return OutcomeSkipped, err.Error()
			}
			log.ErrorContext(ctx, "cancellation failed", slog.String("error", err.Error()))
			return OutcomeError, err.Error()
		}
		return OutcomeSuccess, ""

	case GatewayPastDue:
		if _, err := p.billing.MarkPastDue(ctx, id); err != nil {
			if billing.IsInvalidTransition(err) || billing.IsNotFound(err) {
				return OutcomeSkipped, err.Error()
			}
			log.ErrorContext(ctx, "past-due transition failed", slog.String("error", err.Error()))
			return OutcomeError, err.Error()
		}
		return OutcomeSuccess, ""

	default:
		return OutcomeSkipped, "gateway status pending"
	}
}
