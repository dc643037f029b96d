package billing

import (
	"time"

	"github.com/google/uuid"
)

// Feature represents a plan capability that maps onto a tenant module flag.
type Feature string

const (
	FeatureAgenda        Feature = "agenda"
	FeatureReminders     Feature = "reminders"
	FeatureOnlineBooking Feature = "online_booking"
	FeatureReports       Feature = "reports"
	FeatureInventory     Feature = "inventory"
	FeatureMultiBranch   Feature = "multi_branch"
	FeatureAPI           Feature = "api"
)

// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Plan is a vendor-scoped catalog entry. Pricing is per billing cadence.
// Plans are immutable once referenced by an active subscription except for
// administrative entitlement edits, which cascade to dependent tenants'
// module flags through the entitlement syncer.
type Plan struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	Code     string // stable handle, e.g. "pro"
	Name     string

	Prices    map[BillingPeriod]Money
	TrialDays int

	Features []Feature
	Limits   map[string]int64 // resource limits, -1 for unlimited

	Public bool // available for self-service checkout

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Price returns the plan's price for a billing cadence.
func (p *Plan) Price(period BillingPeriod) (Money, bool) {
	m, ok := p.Prices[period]
	return m, ok
}

// HasFeature reports whether the plan grants a feature.
func (p *Plan) HasFeature(f Feature) bool {
	for _, feature := range p.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// TrialEndsAt calculates when a trial begun at startedAt ends.
// Returns startedAt unchanged for plans without a trial.
func (p *Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays)
}
