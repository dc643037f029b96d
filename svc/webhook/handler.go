package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citaplan/citaplan/svc/billing"
)

// SignatureVerifier validates that a delivery was signed by the gateway.
// Satisfied by the Paddle SDK's *paddle.WebhookVerifier.
type SignatureVerifier interface {
	Verify(r *http.Request) (bool, error)
}

// paddlePayload is the subset of a Paddle webhook body the handler reads.
type paddlePayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		CustomData struct {
			Reference string `json:"reference"`
		} `json:"custom_data"`
	} `json:"data"`
}

// Handler is the webhook ingress. Deliveries are signature-checked, their
// idempotency claim is recorded synchronously, and only then acknowledged;
// the lifecycle work itself continues in the background so the gateway never
// waits on it.
type Handler struct {
	processor *Processor
	verifier  SignatureVerifier
	logger    *slog.Logger

	// processTimeout bounds background processing detached from the
	// request context.
	processTimeout time.Duration
}

// NewHandler creates the ingress handler. Panics on a nil processor or
// verifier.
func NewHandler(processor *Processor, verifier SignatureVerifier, logger *slog.Logger) *Handler {
	if processor == nil {
		panic("webhook: processor is required")
	}
	if verifier == nil {
		panic("webhook: signature verifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor:      processor,
		verifier:       verifier,
		logger:         logger,
		processTimeout: 30 * time.Second,
	}
}

// Routes mounts the gateway endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/paddle", h.handlePaddle)
	return r
}

func (h *Handler) handlePaddle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.WarnContext(r.Context(), "reading webhook body failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verified(r, body) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload paddlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.WarnContext(r.Context(), "malformed webhook payload", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ev := Event{
		Gateway:   "paddle",
		RequestID: payload.EventID,
		EventType: payload.EventType,
		Reference: payload.Data.CustomData.Reference,
		Status:    mapPaddleEventStatus(payload.EventType, payload.Data.Status),
	}

	if ev.RequestID == "" {
		// No delivery id, nothing to claim: acknowledge and apply
		// unguarded in the background.
		w.WriteHeader(http.StatusOK)
		h.detach(ev, nil)
		return
	}

	// Record the idempotency claim before acknowledging, so a retry after
	// our 200 finds the pair already claimed.
	receipt, err := h.processor.Claim(r.Context(), ev)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook claim failed",
			slog.String("request_id", ev.RequestID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if receipt == nil {
		h.logger.InfoContext(r.Context(), "duplicate delivery acknowledged",
			slog.String("request_id", ev.RequestID))
		return
	}
	h.detach(ev, receipt)
}

// verified checks the Paddle-Signature header against the raw body. The
// verifier consumes a request body, so verification runs on a rebuilt
// request carrying the already-read bytes.
func (h *Handler) verified(r *http.Request, body []byte) bool {
	vr, err := http.NewRequestWithContext(r.Context(), http.MethodPost, r.URL.String(), bytes.NewReader(body))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "building verification request failed", slog.String("error", err.Error()))
		return false
	}
	vr.Header.Set("Paddle-Signature", r.Header.Get("Paddle-Signature"))

	ok, err := h.verifier.Verify(vr)
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification errored", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		h.logger.WarnContext(r.Context(), "rejected webhook with invalid signature",
			slog.String("remote_addr", r.RemoteAddr))
	}
	return ok
}

// detach continues processing after the acknowledgment, bounded by its own
// timeout. A nil receipt means the event runs unguarded.
func (h *Handler) detach(ev Event, receipt *Receipt) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		defer cancel()
		if receipt == nil {
			h.processor.Process(ctx, ev)
			return
		}
		h.processor.Resolve(ctx, receipt, ev)
	}()
}

// mapPaddleEventStatus normalizes Paddle event type and status fields.
func mapPaddleEventStatus(eventType, status string) billing.GatewayStatus {
	switch eventType {
	case "subscription.canceled", "subscription.cancelled":
		return billing.GatewayCancelled
	case "subscription.past_due", "transaction.payment_failed":
		return GatewayPastDue
	case "transaction.completed", "subscription.activated", "subscription.created":
		switch status {
		case "canceled", "cancelled":
			return billing.GatewayCancelled
		case "past_due":
			return GatewayPastDue
		case "", "completed", "active", "trialing", "paid", "billed", "ready":
			return billing.GatewayAuthorized
		}
		return billing.GatewayPending
	default:
		return billing.GatewayPending
	}
}
