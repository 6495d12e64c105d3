// Package stripe translates Stripe webhook deliveries into canonical
// lifecycle events. It is the only package that knows provider payload
// shapes; everything downstream works on domain types.
package stripe

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	stripego "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/neolearn/subsync/internal/domain"
)

// Verifier checks webhook signatures and normalizes event payloads.
type Verifier struct {
	secret string
	// allowUnverified accepts payloads with a bad or missing signature.
	// Only ever enabled outside production, for local replay tooling.
	allowUnverified bool
	logger          *slog.Logger
}

// NewVerifier creates a verifier for the given endpoint signing secret.
func NewVerifier(secret string, allowUnverified bool, logger *slog.Logger) *Verifier {
	return &Verifier{secret: secret, allowUnverified: allowUnverified, logger: logger}
}

// VerifyAndParse authenticates the raw payload against the
// Stripe-Signature header and maps it to a canonical lifecycle event.
// A bad signature returns domain.SignatureError; an unmappable event
// type returns a KindUnknown event, never an error.
func (v *Verifier) VerifyAndParse(payload []byte, signatureHeader string) (domain.LifecycleEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if !v.allowUnverified {
			return domain.LifecycleEvent{}, &domain.SignatureError{Err: err}
		}
		v.logger.Warn("accepting unverified event payload", "error", err)
		if uerr := json.Unmarshal(payload, &event); uerr != nil {
			return domain.LifecycleEvent{}, domain.ErrMalformedPayload
		}
	}

	return v.normalize(event)
}

func (v *Verifier) normalize(event stripego.Event) (domain.LifecycleEvent, error) {
	out := domain.LifecycleEvent{
		ID:         event.ID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.LifecycleEvent{}, domain.ErrMalformedPayload
		}
		out.Kind = domain.KindCheckoutCompleted
		out.Checkout = checkoutFromSession(session)

	case "invoice.paid", "invoice.payment_succeeded":
		var invoice stripego.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return domain.LifecycleEvent{}, domain.ErrMalformedPayload
		}
		out.Kind = domain.KindInvoicePaid
		out.Invoice = invoiceFromPayload(invoice)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.LifecycleEvent{}, domain.ErrMalformedPayload
		}
		out.Kind = subscriptionKind(event.Type)
		out.Subscription = subscriptionFromPayload(sub)

	default:
		out.Kind = domain.KindUnknown
	}

	return out, nil
}

func subscriptionKind(eventType string) domain.EventKind {
	switch eventType {
	case "customer.subscription.created":
		return domain.KindSubscriptionCreated
	case "customer.subscription.deleted":
		return domain.KindSubscriptionCanceled
	default:
		return domain.KindSubscriptionUpdated
	}
}

// defaultPeriodDays is assumed when checkout metadata omits period_days.
const defaultPeriodDays = 30

func checkoutFromSession(session stripego.CheckoutSession) *domain.CheckoutData {
	meta := session.Metadata
	data := &domain.CheckoutData{
		CompanyName: meta["company_name"],
		ContactName: meta["contact_name"],
		TaxID:       meta["tax_id"],
		AddressLine: meta["address_line"],
		City:        meta["city"],
		PostalCode:  meta["postal_code"],
		Country:     meta["country"],
		PlanRef:     meta["plan"],
		PeriodDays:  metaInt(meta, "period_days", defaultPeriodDays),

		MaxCollaborators: metaInt(meta, "max_collaborators", 0),
	}

	if session.CustomerDetails != nil {
		data.ContactEmail = session.CustomerDetails.Email
		data.ContactPhone = session.CustomerDetails.Phone
		if data.ContactName == "" {
			data.ContactName = session.CustomerDetails.Name
		}
	}
	if session.Customer != nil {
		data.CustomerRef = session.Customer.ID
	}
	if session.Subscription != nil {
		data.SubscriptionRef = session.Subscription.ID
	}

	return data
}

func invoiceFromPayload(invoice stripego.Invoice) *domain.InvoiceData {
	data := &domain.InvoiceData{
		PeriodStart: time.Unix(invoice.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(invoice.PeriodEnd, 0).UTC(),
	}
	if invoice.Subscription != nil {
		data.SubscriptionRef = invoice.Subscription.ID
	}
	if invoice.StatusTransitions != nil && invoice.StatusTransitions.PaidAt > 0 {
		data.PaidAt = time.Unix(invoice.StatusTransitions.PaidAt, 0).UTC()
	}
	// Line periods carry the renewed window when the invoice-level
	// period covers only the billing cycle anchor.
	if invoice.Lines != nil && len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[len(invoice.Lines.Data)-1]
		if line.Period != nil && line.Period.End > invoice.PeriodEnd {
			data.PeriodStart = time.Unix(line.Period.Start, 0).UTC()
			data.PeriodEnd = time.Unix(line.Period.End, 0).UTC()
		}
	}
	return data
}

func subscriptionFromPayload(sub stripego.Subscription) *domain.SubscriptionData {
	data := &domain.SubscriptionData{
		SubscriptionRef:  sub.ID,
		Status:           domain.ParseSubscriptionStatus(string(sub.Status)),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.Customer != nil {
		data.CustomerRef = sub.Customer.ID
	}
	return data
}

func metaInt(meta map[string]string, key string, fallback int) int {
	raw, ok := meta[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
