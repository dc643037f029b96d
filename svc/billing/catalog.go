package billing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML shape of a plan catalog seed file.
type catalogFile struct {
	Plans []catalogPlan `yaml:"plans"`
}

type catalogPlan struct {
	Code      string           `yaml:"code"`
	Name      string           `yaml:"name"`
	TrialDays int              `yaml:"trial_days"`
	Public    bool             `yaml:"public"`
	Prices    map[string]int64 `yaml:"prices"` // period -> amount in smallest unit
	Currency  string           `yaml:"currency"`
	Features  []string         `yaml:"features"`
	Limits    map[string]int64 `yaml:"limits"`
}

// LoadCatalog parses a YAML plan catalog and upserts every plan for the
// vendor. Existing plans are matched by code so the seed is idempotent.
func LoadCatalog(ctx context.Context, r io.Reader, plans PlanStore, vendorID uuid.UUID) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read plan catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse plan catalog: %w", err)
	}

	now := time.Now().UTC()
	count := 0
	for _, cp := range file.Plans {
		plan, err := cp.toPlan(vendorID, now)
		if err != nil {
			return count, fmt.Errorf("plan %q: %w", cp.Code, err)
		}
		if existing, err := plans.GetByCode(ctx, vendorID, cp.Code); err == nil {
			plan.ID = existing.ID
			plan.CreatedAt = existing.CreatedAt
		} else if !IsNotFound(err) {
			return count, err
		}
		if err := plans.Upsert(ctx, plan); err != nil {
			return count, fmt.Errorf("upsert plan %q: %w", cp.Code, err)
		}
		count++
	}
	return count, nil
}

func (cp catalogPlan) toPlan(vendorID uuid.UUID, now time.Time) (*Plan, error) {
	if cp.Code == "" {
		return nil, fmt.Errorf("missing code")
	}
	if cp.Currency == "" {
		return nil, fmt.Errorf("missing currency")
	}
	if len(cp.Prices) == 0 {
		return nil, fmt.Errorf("no prices")
	}

	prices := make(map[BillingPeriod]Money, len(cp.Prices))
	for periodName, amount := range cp.Prices {
		period := BillingPeriod(periodName)
		if !period.Valid() {
			return nil, fmt.Errorf("unknown billing period %q", periodName)
		}
		if amount < 0 {
			return nil, fmt.Errorf("negative price for period %q", periodName)
		}
		prices[period] = Money{Amount: amount, Currency: cp.Currency}
	}

	features := make([]Feature, 0, len(cp.Features))
	for _, f := range cp.Features {
		features = append(features, Feature(f))
	}

	name := cp.Name
	if name == "" {
		name = cp.Code
	}

	return &Plan{
		ID:        uuid.New(),
		VendorID:  vendorID,
		Code:      cp.Code,
		Name:      name,
		Prices:    prices,
		TrialDays: cp.TrialDays,
		Features:  features,
		Limits:    cp.Limits,
		Public:    cp.Public,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
