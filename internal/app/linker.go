package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// Linker resolves a tenant's contact email to exactly one authentication
// identity and binds it to the tenant exactly once.
type Linker struct {
	repo      domain.TenantRepository
	directory domain.IdentityDirectory
	profiles  domain.ProfileRepository
	logger    *slog.Logger
}

// NewLinker creates a linker with the given adapters.
func NewLinker(repo domain.TenantRepository, directory domain.IdentityDirectory, profiles domain.ProfileRepository, logger *slog.Logger) *Linker {
	return &Linker{
		repo:      repo,
		directory: directory,
		profiles:  profiles,
		logger:    logger,
	}
}

// Link ensures the tenant has a linked identity. Every step is safe to
// re-run: an already-linked tenant returns immediately, and the
// directory is searched before an invite is issued so a retried checkout
// never creates a duplicate identity. Failure leaves the tenant
// provisioned but unlinked; a later pass re-attempts from step one.
func (l *Linker) Link(ctx context.Context, tenantID string) (domain.Identity, error) {
	tenant, err := l.repo.GetByID(ctx, tenantID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("loading tenant: %w", err)
	}

	if tenant.LinkedIdentityID != "" {
		return domain.Identity{ID: tenant.LinkedIdentityID, Email: tenant.ContactEmail}, nil
	}

	identity, err := l.directory.FindByEmail(ctx, tenant.ContactEmail)
	invited := false
	switch {
	case err == nil:
		// Existing identity: link it, never invite.
	case errors.Is(err, domain.ErrIdentityNotFound):
		identity, err = l.directory.CreateWithInvite(ctx, tenant.ContactEmail, domain.InviteMetadata{
			Role:     domain.RoleOwner,
			Name:     tenant.ContactName,
			TenantID: tenant.ID,
		})
		if err != nil {
			return domain.Identity{}, fmt.Errorf("inviting identity: %w", err)
		}
		invited = true
	default:
		return domain.Identity{}, fmt.Errorf("searching identity: %w", err)
	}

	tenant.LinkedIdentityID = identity.ID
	if err := l.repo.Update(ctx, tenant); err != nil {
		return domain.Identity{}, fmt.Errorf("linking identity to tenant: %w", err)
	}

	if invited {
		profile := domain.Profile{
			IdentityID:  identity.ID,
			Role:        domain.RoleOwner,
			DisplayName: tenant.ContactName,
			Email:       tenant.ContactEmail,
			CreatedAt:   time.Now().UTC(),
		}
		// The link is already durable; a missing profile is repairable
		// operator-side and must not undo it.
		if err := l.profiles.Create(ctx, profile); err != nil {
			l.logger.WarnContext(ctx, "profile provisioning failed",
				"identity_id", identity.ID,
				"tenant_id", tenant.ID,
				"error", err,
			)
		}
	}

	l.logger.InfoContext(ctx, "identity linked",
		"tenant_id", tenant.ID,
		"identity_id", identity.ID,
		"invited", invited,
	)

	return identity, nil
}
