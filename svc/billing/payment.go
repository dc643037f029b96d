package billing

import (
	"time"

	"github.com/google/uuid"
)

// Payment is one row per charge attempt against a subscription. It is
// created pending before attempting a charge and updated on gateway
// confirmation, inside the same transaction as the state write it
// accompanies.
type Payment struct {
	ID             uuid.UUID
	VendorID       uuid.UUID
	SubscriptionID uuid.UUID

	Amount Money
	Status PaymentStatus

	GatewayPaymentID string
	GatewayRequestID string

	RefundedAmount int64
	RefundedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed reports whether the charge was confirmed by the gateway.
func (p *Payment) Completed() bool {
	return p.Status == PaymentCompleted
}
