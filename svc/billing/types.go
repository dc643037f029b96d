package billing

// Money represents a monetary amount in the smallest currency unit.
// For example, $4.99 USD would be Amount: 499, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217 currency code
}

// IsZero reports whether the amount is zero. A zero-priced checkout (cash
// coupon case) skips the payment gateway entirely.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// BillingPeriod represents the billing cadence of a subscription.
type BillingPeriod string

const (
	PeriodMonthly    BillingPeriod = "monthly"
	PeriodQuarterly  BillingPeriod = "quarterly"
	PeriodSemiannual BillingPeriod = "semiannual"
	PeriodAnnual     BillingPeriod = "annual"
)

// Months returns the cadence length in months, used to advance the next
// charge date on successful payment.
func (p BillingPeriod) Months() int {
	switch p {
	case PeriodQuarterly:
		return 3
	case PeriodSemiannual:
		return 6
	case PeriodAnnual:
		return 12
	default:
		return 1
	}
}

// Valid reports whether p is one of the supported cadences.
func (p BillingPeriod) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodSemiannual, PeriodAnnual:
		return true
	}
	return false
}

// Status represents the lifecycle state of a subscription. The values are
// the states persisted by the platform, kept verbatim for wire and storage
// compatibility.
type Status string

const (
	StatusTrial          Status = "trial"
	StatusPendingPayment Status = "pendiente_pago" // awaiting first payment
	StatusActive         Status = "activa"
	StatusPaused         Status = "pausada"
	StatusPastDue        Status = "vencida" // payment failed
	StatusGracePeriod    Status = "grace_period"
	StatusSuspended      Status = "suspendida"
	StatusCancelled      Status = "cancelada" // terminal
)

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusPendingPayment, StatusActive, StatusPaused,
		StatusPastDue, StatusGracePeriod, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus represents the state of a single charge attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pendiente"
	PaymentCompleted PaymentStatus = "completado"
	PaymentFailed    PaymentStatus = "fallido"
	PaymentRefunded  PaymentStatus = "reembolsado"
)

// BillingType identifies which billing strategy produced a checkout.
type BillingType string

const (
	// BillingTypePlatform means the platform operator organization is the
	// seller of record (the default, dogfooding path).
	BillingTypePlatform BillingType = "platform"

	// BillingTypeCustomer means the caller's own organization is the seller
	// of record, opted into explicitly per checkout.
	BillingTypeCustomer BillingType = "customer"
)

// Actor identifies who requested a state change, recorded on cancellation.
type Actor struct {
	ID   string
	Kind string // "user", "system", "webhook"
}

// System is the actor recorded for scheduler-driven transitions.
var System = Actor{ID: "system", Kind: "system"}
