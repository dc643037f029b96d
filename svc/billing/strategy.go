package billing

import (
	"context"

	"github.com/google/uuid"
)

// ClientDirectory is the slice of the CRM the billing strategies need:
// resolving the operator's client record linked to a caller organization,
// and checking client ownership for customer-billed checkouts.
type ClientDirectory interface {
	// FindLinkedClient returns the id of the client record in the operator's
	// own CRM whose back-reference points at linkedOrgID.
	// Returns ErrClientNotFound when no such record exists.
	FindLinkedClient(ctx context.Context, operatorID, linkedOrgID uuid.UUID) (uuid.UUID, error)

	// ClientBelongsTo reports whether clientID is a client of tenantID.
	ClientBelongsTo(ctx context.Context, tenantID, clientID uuid.UUID) (bool, error)

	// LinkedOrganization returns the organization a client record points to
	// through its back-reference, when the client represents another tenant
	// of the platform. ok is false for plain clients.
	LinkedOrganization(ctx context.Context, clientID uuid.UUID) (uuid.UUID, bool, error)
}

// CheckoutContext carries the request-scoped facts a strategy needs.
type CheckoutContext struct {
	// CallerID is the organization initiating the checkout.
	CallerID uuid.UUID

	// OperatorID is the platform operator organization.
	OperatorID uuid.UUID

	// CustomerBilling opts into the caller organization selling under its
	// own name. Requires ClientID to be set.
	CustomerBilling bool

	// ClientID is the explicit subscriber client for customer billing.
	ClientID *uuid.UUID

	// External carries subscriber contact details when no client record
	// exists for the subscriber.
	External *Subscriber
}

// Strategy decides who the seller of record is for a checkout and how the
// subscriber is resolved. The set of strategies is closed: exactly platform
// and customer, selected once per request at the boundary.
type Strategy interface {
	// VendorID returns the seller-of-record organization.
	VendorID(cc CheckoutContext) uuid.UUID

	// ClientID resolves the subscriber's client record. It may perform a
	// directory lookup and must fail descriptively when unresolved.
	ClientID(ctx context.Context, cc CheckoutContext) (uuid.UUID, error)

	// ValidateSubscriber is the pre-flight check run before any subscription
	// row is created.
	ValidateSubscriber(ctx context.Context, cc CheckoutContext) error

	// BillingType identifies the strategy for logging.
	BillingType() BillingType

	// ExternalSubscriberPayload returns the embedded subscriber record, or
	// nil when a client id is already resolved.
	ExternalSubscriberPayload(cc CheckoutContext) *Subscriber
}

// SelectStrategy resolves the billing strategy for a checkout context.
// Customer billing must be requested explicitly; everything else uses the
// platform strategy.
func SelectStrategy(cc CheckoutContext, dir ClientDirectory) Strategy {
	if cc.CustomerBilling {
		return &customerStrategy{dir: dir}
	}
	return &platformStrategy{dir: dir}
}

// platformStrategy: the platform operator is always the vendor; the
// subscriber is the client record in the operator's CRM whose back-reference
// matches the caller organization.
type platformStrategy struct {
	dir ClientDirectory
}

func (s *platformStrategy) VendorID(cc CheckoutContext) uuid.UUID {
	return cc.OperatorID
}

func (s *platformStrategy) ClientID(ctx context.Context, cc CheckoutContext) (uuid.UUID, error) {
	id, err := s.dir.FindLinkedClient(ctx, cc.OperatorID, cc.CallerID)
	if err != nil {
		if IsNotFound(err) {
			return uuid.Nil, ErrNoLinkedClient
		}
		return uuid.Nil, err
	}
	return id, nil
}

func (s *platformStrategy) ValidateSubscriber(ctx context.Context, cc CheckoutContext) error {
	if cc.CallerID == cc.OperatorID {
		return ErrOperatorSelfSubscription
	}
	if _, err := s.ClientID(ctx, cc); err != nil {
		return err
	}
	return nil
}

func (s *platformStrategy) BillingType() BillingType {
	return BillingTypePlatform
}

func (s *platformStrategy) ExternalSubscriberPayload(cc CheckoutContext) *Subscriber {
	// The subscriber is always a resolved client in the operator CRM.
	return nil
}

// customerStrategy: the caller's own organization is the vendor; the
// subscriber is a client id supplied in the request.
type customerStrategy struct {
	dir ClientDirectory
}

func (s *customerStrategy) VendorID(cc CheckoutContext) uuid.UUID {
	return cc.CallerID
}

func (s *customerStrategy) ClientID(ctx context.Context, cc CheckoutContext) (uuid.UUID, error) {
	if cc.ClientID == nil {
		// An embedded external subscriber is allowed instead of a client
		// record; anything else is a missing required linkage.
		if cc.External != nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, ErrClientRequired
	}
	ok, err := s.dir.ClientBelongsTo(ctx, cc.CallerID, *cc.ClientID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, ErrClientNotOwned
	}
	return *cc.ClientID, nil
}

func (s *customerStrategy) ValidateSubscriber(ctx context.Context, cc CheckoutContext) error {
	_, err := s.ClientID(ctx, cc)
	return err
}

func (s *customerStrategy) BillingType() BillingType {
	return BillingTypeCustomer
}

func (s *customerStrategy) ExternalSubscriberPayload(cc CheckoutContext) *Subscriber {
	if cc.ClientID != nil {
		return nil
	}
	return cc.External
}
