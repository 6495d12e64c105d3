package app_test

import (
	"strings"
	"testing"
	"time"

	"github.com/neolearn/subsync/internal/app"
	"github.com/neolearn/subsync/internal/domain"
)

func renderTenant() domain.Tenant {
	return domain.Tenant{
		ID:                 "tenant-1",
		Name:               "Acme Corp",
		ContactName:        "Jo Acme",
		ContactEmail:       "billing@acme.test",
		MaxCollaborators:   10,
		SubscriptionEndsAt: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestRenderNotification_AllKinds(t *testing.T) {
	kinds := []domain.NotificationKind{
		domain.NoticePaymentDue,
		domain.NoticeSubscriptionCanceled,
		domain.NoticeCollaboratorsBlocked,
		domain.NoticeSubscriptionExpired,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			content, err := app.RenderNotification(kind, renderTenant(), 4)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if content.Subject == "" || content.Body == "" {
				t.Fatal("subject and body must be non-empty")
			}
			if !strings.Contains(content.Subject, "Acme Corp") {
				t.Errorf("subject %q should name the tenant", content.Subject)
			}
			if !strings.Contains(content.Body, "Jo Acme") {
				t.Errorf("body should greet the contact, got %q", content.Body)
			}
		})
	}
}

func TestRenderNotification_CollaboratorCounts(t *testing.T) {
	content, err := app.RenderNotification(domain.NoticeCollaboratorsBlocked, renderTenant(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content.Body, "4") || !strings.Contains(content.Body, "10") {
		t.Errorf("body should carry active and max collaborator counts, got %q", content.Body)
	}
}

func TestRenderNotification_ExpiryDate(t *testing.T) {
	content, err := app.RenderNotification(domain.NoticeSubscriptionExpired, renderTenant(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content.Body, "December 31, 2026") {
		t.Errorf("body should carry the expiry date, got %q", content.Body)
	}
}

func TestRenderNotification_FallsBackToCompanyName(t *testing.T) {
	tenant := renderTenant()
	tenant.ContactName = ""

	content, err := app.RenderNotification(domain.NoticePaymentDue, tenant, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content.Body, "Hi Acme Corp,") {
		t.Errorf("body should fall back to the company name, got %q", content.Body)
	}
}

func TestRenderNotification_MissingDataFails(t *testing.T) {
	noEmail := renderTenant()
	noEmail.ContactEmail = ""
	if _, err := app.RenderNotification(domain.NoticePaymentDue, noEmail, 0); err == nil {
		t.Error("expected error for tenant without contact email")
	}

	noName := renderTenant()
	noName.ContactName = ""
	noName.Name = ""
	if _, err := app.RenderNotification(domain.NoticePaymentDue, noName, 0); err == nil {
		t.Error("expected error for tenant without any name")
	}

	if _, err := app.RenderNotification("bogus", renderTenant(), 0); err == nil {
		t.Error("expected error for unknown notification kind")
	}
}
