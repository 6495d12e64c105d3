package app

import (
	"fmt"

	"github.com/neolearn/subsync/internal/domain"
)

// Content is a rendered notification ready for delivery.
type Content struct {
	Subject string
	Body    string
}

// RenderNotification produces the subject and body for a notification
// kind from a tenant snapshot and the tenant's active collaborator
// count. It is a pure function so content can be tested without a
// transport; missing required data is a rendering error, which the
// dispatcher treats as a delivery failure.
func RenderNotification(kind domain.NotificationKind, tenant domain.Tenant, activeCollaborators int) (Content, error) {
	if tenant.ContactEmail == "" {
		return Content{}, fmt.Errorf("tenant %s has no contact email", tenant.ID)
	}

	name := tenant.ContactName
	if name == "" {
		name = tenant.Name
	}
	if name == "" {
		return Content{}, fmt.Errorf("tenant %s has no contact or company name", tenant.ID)
	}

	endsAt := tenant.SubscriptionEndsAt.Format("January 2, 2006")

	switch kind {
	case domain.NoticePaymentDue:
		return Content{
			Subject: fmt.Sprintf("Payment due for %s", tenant.Name),
			Body: fmt.Sprintf(
				"Hi %s,\n\nWe could not collect the latest payment for %s. "+
					"Please update your payment details to keep your subscription active. "+
					"Your current access runs until %s.\n",
				name, tenant.Name, endsAt),
		}, nil

	case domain.NoticeSubscriptionCanceled:
		return Content{
			Subject: fmt.Sprintf("Subscription canceled for %s", tenant.Name),
			Body: fmt.Sprintf(
				"Hi %s,\n\nThe subscription for %s has been canceled. "+
					"Access for your %d active collaborators ends on %s.\n",
				name, tenant.Name, activeCollaborators, endsAt),
		}, nil

	case domain.NoticeCollaboratorsBlocked:
		return Content{
			Subject: fmt.Sprintf("Collaborator access suspended for %s", tenant.Name),
			Body: fmt.Sprintf(
				"Hi %s,\n\nBecause of unpaid invoices, access for %d of the %d "+
					"collaborator seats on %s has been suspended. Settle the open "+
					"balance to restore access.\n",
				name, activeCollaborators, tenant.MaxCollaborators, tenant.Name),
		}, nil

	case domain.NoticeSubscriptionExpired:
		return Content{
			Subject: fmt.Sprintf("Subscription expired for %s", tenant.Name),
			Body: fmt.Sprintf(
				"Hi %s,\n\nThe subscription for %s expired on %s. "+
					"Renew to restore access for your %d collaborators.\n",
				name, tenant.Name, endsAt, activeCollaborators),
		}, nil

	default:
		return Content{}, fmt.Errorf("no template for notification kind %q", kind)
	}
}
