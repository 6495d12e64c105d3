package domain

import "time"

// EventKind is the closed set of canonical lifecycle event kinds.
// Provider event type strings with no mapping become KindUnknown; those
// are acknowledged and ignored, never retried.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout_completed"
	KindInvoicePaid          EventKind = "invoice_paid"
	KindSubscriptionCreated  EventKind = "subscription_created"
	KindSubscriptionUpdated  EventKind = "subscription_updated"
	KindSubscriptionCanceled EventKind = "subscription_canceled"
	KindUnknown              EventKind = "unknown"
)

// LifecycleEvent is the provider-agnostic representation of one inbound
// billing event. Exactly one of the payload pointers is set, matching
// Kind. Redelivery of the same event ID must converge to the same end
// state; handlers are written to be idempotent rather than deduplicated.
type LifecycleEvent struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time

	Checkout     *CheckoutData     `json:",omitempty"`
	Invoice      *InvoiceData      `json:",omitempty"`
	Subscription *SubscriptionData `json:",omitempty"`
}

// SubscriptionRef returns the provider subscription reference carried by
// the event payload, if any.
func (e LifecycleEvent) SubscriptionRef() string {
	switch {
	case e.Invoice != nil:
		return e.Invoice.SubscriptionRef
	case e.Subscription != nil:
		return e.Subscription.SubscriptionRef
	case e.Checkout != nil:
		return e.Checkout.SubscriptionRef
	}
	return ""
}

// CheckoutData carries the fields of a completed checkout. Validation
// tags are enforced by the provisioner before any write.
type CheckoutData struct {
	CompanyName  string `validate:"required"`
	ContactName  string
	ContactEmail string `validate:"required,email"`
	ContactPhone string
	TaxID        string
	AddressLine  string
	City         string
	PostalCode   string
	Country      string

	CustomerRef     string `validate:"required"`
	SubscriptionRef string
	PlanRef         string `validate:"required"`

	MaxCollaborators int
	PeriodDays       int `validate:"gt=0"`
}

// InvoiceData carries the billing period confirmed by a paid invoice.
// This is the authoritative renewal signal; period boundaries are only
// trusted after successful payment.
type InvoiceData struct {
	SubscriptionRef string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PaidAt          time.Time
}

// SubscriptionData carries a provider-reported subscription change.
type SubscriptionData struct {
	SubscriptionRef  string
	CustomerRef      string
	Status           SubscriptionStatus
	CurrentPeriodEnd time.Time
}

// DeferredEvent is a lifecycle event whose target tenant did not exist
// when it arrived (provider-side delivery race). It is held for the
// periodic reconciliation sweep instead of fabricating a partial tenant.
type DeferredEvent struct {
	ID              int64
	EventID         string
	Kind            EventKind
	SubscriptionRef string
	// Payload is the canonical event serialized as JSON, replayed as-is
	// by the sweep once the tenant exists.
	Payload    []byte
	Attempts   int
	ReceivedAt time.Time
	ResolvedAt *time.Time
}
