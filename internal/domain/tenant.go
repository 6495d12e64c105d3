package domain

import "time"

// SubscriptionStatus is the canonical entitlement state of a tenant.
// Provider-reported status strings are normalized into this closed set;
// anything the provider reports that we do not model maps to StatusInactive.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusUnpaid   SubscriptionStatus = "unpaid"
	StatusInactive SubscriptionStatus = "inactive"
)

// ParseSubscriptionStatus normalizes a provider status string.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch raw {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	case "unpaid":
		return StatusUnpaid
	default:
		return StatusInactive
	}
}

// Entitled reports whether the status grants access to the platform.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Tenant is the core domain entity: one paying organization.
// At most one tenant exists per provider customer reference and per
// contact email; the repository's upsert operation guarantees both.
type Tenant struct {
	ID           string
	Name         string
	ContactName  string
	ContactEmail string
	ContactPhone string
	TaxID        string
	AddressLine  string
	City         string
	PostalCode   string
	Country      string

	ProviderCustomerRef     string
	ProviderSubscriptionRef string

	SubscriptionStatus   SubscriptionStatus
	SubscriptionStartsAt time.Time
	SubscriptionEndsAt   time.Time

	// LinkedIdentityID is empty until the identity linker has bound an
	// authentication identity to this tenant.
	LinkedIdentityID string

	PlanRef          string
	MaxCollaborators int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTenant creates a tenant from checkout data with its subscription
// window starting now and running for the requested period.
func NewTenant(id string, data CheckoutData, now time.Time) Tenant {
	now = now.UTC()
	return Tenant{
		ID:                      id,
		Name:                    data.CompanyName,
		ContactName:             data.ContactName,
		ContactEmail:            data.ContactEmail,
		ContactPhone:            data.ContactPhone,
		TaxID:                   data.TaxID,
		AddressLine:             data.AddressLine,
		City:                    data.City,
		PostalCode:              data.PostalCode,
		Country:                 data.Country,
		ProviderCustomerRef:     data.CustomerRef,
		ProviderSubscriptionRef: data.SubscriptionRef,
		SubscriptionStatus:      StatusActive,
		SubscriptionStartsAt:    now,
		SubscriptionEndsAt:      now.AddDate(0, 0, data.PeriodDays),
		PlanRef:                 data.PlanRef,
		MaxCollaborators:        data.MaxCollaborators,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// ApplyCheckout refreshes the mutable fields of an existing tenant from a
// repeated checkout. Identity linkage, subscription status and creation
// time are preserved so re-running provisioning converges instead of
// resetting reconciliation progress.
func (t *Tenant) ApplyCheckout(data CheckoutData, now time.Time) {
	*t = MergeProvisioned(*t, NewTenant(t.ID, data, now))
}

// MergeProvisioned folds the checkout-derived fields of candidate into
// existing and returns the result. Identity linkage, subscription
// status, identifier and creation time of existing are preserved. Used
// by the repository upsert so a repeated checkout updates in place.
func MergeProvisioned(existing, candidate Tenant) Tenant {
	existing.Name = candidate.Name
	existing.ContactName = candidate.ContactName
	existing.ContactEmail = candidate.ContactEmail
	existing.ContactPhone = candidate.ContactPhone
	existing.TaxID = candidate.TaxID
	existing.AddressLine = candidate.AddressLine
	existing.City = candidate.City
	existing.PostalCode = candidate.PostalCode
	existing.Country = candidate.Country
	existing.ProviderCustomerRef = candidate.ProviderCustomerRef
	if candidate.ProviderSubscriptionRef != "" {
		existing.ProviderSubscriptionRef = candidate.ProviderSubscriptionRef
	}
	existing.PlanRef = candidate.PlanRef
	existing.MaxCollaborators = candidate.MaxCollaborators
	existing.SubscriptionStartsAt = candidate.SubscriptionStartsAt
	existing.SubscriptionEndsAt = candidate.SubscriptionEndsAt
	existing.UpdatedAt = candidate.UpdatedAt
	return existing
}

// Collaborator is an end user working under a tenant. Entitlement
// enforcement (blocking collaborators when a subscription lapses) is
// performed outside this subsystem; we only count them for notification
// content and usage reporting.
type Collaborator struct {
	ID       string
	TenantID string
	Name     string
	Email    string
	Active   bool
}
