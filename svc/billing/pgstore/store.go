package pgstore

import (
	"context"

	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
)

// Store implements billing.Store on Postgres through a tenant executor.
//
// Billing tables belong to the seller-of-record organization and are read
// across vendors by system paths (webhook processing, scheduled sweeps), so
// queries run under the executor's bypass scope and every statement carries
// its organization predicate explicitly. Atomically rebinds the store to a
// single scoped transaction so composed writes commit together.
type Store struct {
	exec tenant.Executor
	q    tenant.Querier // set when bound to a transaction by Atomically
}

// New creates a Store. Panics on a nil executor.
func New(exec tenant.Executor) *Store {
	if exec == nil {
		panic("pgstore: tenant executor is required")
	}
	return &Store{exec: exec}
}

func (s *Store) Subscriptions() billing.SubscriptionStore   { return &subscriptionStore{s} }
func (s *Store) Plans() billing.PlanStore                   { return &planStore{s} }
func (s *Store) Coupons() billing.CouponStore               { return &couponStore{s} }
func (s *Store) Payments() billing.PaymentStore             { return &paymentStore{s} }
func (s *Store) CheckoutTokens() billing.CheckoutTokenStore { return &tokenStore{s} }

// Atomically runs fn against a store bound to one scoped transaction.
// Nested calls reuse the already-bound transaction.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, st billing.Store) error) error {
	if s.q != nil {
		return fn(ctx, s)
	}
	return s.exec.WithBypass(ctx, func(ctx context.Context, q tenant.Querier) error {
		return fn(ctx, &Store{exec: s.exec, q: q})
	})
}

// run executes fn inside the bound transaction, or a fresh bypass scope when
// the store is unbound.
func (s *Store) run(ctx context.Context, fn tenant.ScopeFunc) error {
	if s.q != nil {
		return fn(ctx, s.q)
	}
	return s.exec.WithBypass(ctx, fn)
}
