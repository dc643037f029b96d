package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle payment gateway.
type PaddleConfig struct {
	APIKey         string `env:"PADDLE_API_KEY,required"`
	WebhookSecret  string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment    string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	TestPayerEmail string `env:"PADDLE_TEST_PAYER_EMAIL" envDefault:"test@example.com"`
	SuccessURL     string `env:"PADDLE_SUCCESS_URL"`
}

// PaddleGateway implements Gateway on the official Paddle SDK.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	sandbox  bool
	config   PaddleConfig
}

// NewPaddleGateway creates a Paddle-backed payment gateway client.
func NewPaddleGateway(cfg PaddleConfig) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var (
		client  *paddle.SDK
		sandbox bool
		err     error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
		sandbox = true
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		sandbox:  sandbox,
		config:   cfg,
	}, nil
}

func (g *PaddleGateway) Name() string { return "paddle" }

// WebhookVerifier returns the Paddle-Signature verifier for this gateway's
// webhook secret. The ingress rejects deliveries that fail it.
func (g *PaddleGateway) WebhookVerifier() *paddle.WebhookVerifier {
	return g.verifier
}

func (g *PaddleGateway) SandboxMode() bool { return g.sandbox }

func (g *PaddleGateway) TestPayerEmail() string { return g.config.TestPayerEmail }

// CreateSubscription sets up a hosted checkout for a recurring charge.
// Paddle models this as a transaction whose completion spawns the provider
// subscription; the definitive provider subscription id arrives later via
// webhook, so the returned id is the transaction id used for correlation.
func (g *PaddleGateway) CreateSubscription(ctx context.Context, spec GatewaySubscriptionSpec) (*GatewayCheckout, error) {
	if spec.Reference == "" {
		return nil, errors.Join(ErrGateway, errors.New("subscription reference is required"))
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  spec.PlanName,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"reference": spec.Reference,
		},
	}

	payerEmail := spec.PayerEmail
	if g.sandbox {
		payerEmail = g.config.TestPayerEmail
	}
	if payerEmail != "" {
		req.CustomData["payer_email"] = payerEmail
	}

	successURL := spec.SuccessURL
	if successURL == "" {
		successURL = g.config.SuccessURL
	}
	if successURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(successURL),
		}
	}

	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrGateway, err)
	}

	var checkoutURL string
	if txn.Checkout != nil && txn.Checkout.URL != nil {
		checkoutURL = *txn.Checkout.URL
	}
	if checkoutURL == "" {
		return nil, errors.Join(ErrGateway, errors.New("no checkout URL returned from paddle"))
	}

	return &GatewayCheckout{
		SubscriptionID: txn.ID,
		CheckoutURL:    checkoutURL,
	}, nil
}

// GetSubscription fetches the provider-side subscription state. Used by the
// polling fallback sweep to reconcile subscriptions whose webhook was lost.
func (g *PaddleGateway) GetSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	sub, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: id,
	})
	if err != nil {
		return nil, errors.Join(ErrGateway, err)
	}

	return &GatewaySubscription{
		ID:     sub.ID,
		Status: mapPaddleStatus(string(sub.Status)),
		Raw: map[string]any{
			"id":         sub.ID,
			"status":     string(sub.Status),
			"fetched_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// mapPaddleStatus normalizes Paddle subscription statuses onto the three
// values the lifecycle consumes.
func mapPaddleStatus(status string) GatewayStatus {
	switch status {
	case "active", "trialing":
		return GatewayAuthorized
	case "canceled", "cancelled":
		return GatewayCancelled
	default:
		return GatewayPending
	}
}
