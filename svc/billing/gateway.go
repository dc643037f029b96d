package billing

import "context"

// GatewayStatus is the normalized subscription status reported by a payment
// gateway. Only these three values are consumed.
type GatewayStatus string

const (
	GatewayAuthorized GatewayStatus = "authorized"
	GatewayCancelled  GatewayStatus = "cancelled"
	GatewayPending    GatewayStatus = "pending"
)

// GatewaySubscriptionSpec describes the recurring charge to set up.
type GatewaySubscriptionSpec struct {
	Reference  string // our subscription id, echoed back in webhooks
	PlanName   string
	Amount     Money
	Period     BillingPeriod
	PayerEmail string
	SuccessURL string
	CancelURL  string
}

// GatewayCheckout is the result of creating a gateway subscription: the
// provider-side id plus the hosted checkout URL the subscriber is sent to.
type GatewayCheckout struct {
	SubscriptionID string
	CheckoutURL    string
}

// GatewaySubscription is the provider-side view used by webhook processing
// and by the polling fallback sweep.
type GatewaySubscription struct {
	ID     string
	Status GatewayStatus
	Raw    map[string]any
}

// Gateway is the payment-provider client consumed by checkout and the
// polling fallback. Calls are never retried synchronously inside a request;
// failures surface wrapped in ErrGateway and the polling sweep reconciles.
type Gateway interface {
	// Name identifies the gateway in subscription rows and webhook receipts.
	Name() string

	CreateSubscription(ctx context.Context, spec GatewaySubscriptionSpec) (*GatewayCheckout, error)
	GetSubscription(ctx context.Context, id string) (*GatewaySubscription, error)

	// SandboxMode reports whether the client talks to the provider sandbox.
	SandboxMode() bool

	// TestPayerEmail returns the payer email to use in sandbox checkouts.
	TestPayerEmail() string
}
