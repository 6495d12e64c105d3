package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/neolearn/subsync/internal/domain"
)

// ProvisionAction discriminates the outcome of a provisioning call.
// Callers branch on it instead of assuming a row was created.
type ProvisionAction string

const (
	ActionCreated ProvisionAction = "created"
	ActionUpdated ProvisionAction = "updated"
)

// ProvisionResult reports what provisioning did and to which tenant.
type ProvisionResult struct {
	Action   ProvisionAction
	TenantID string
}

// Provisioner turns checkout-completion data into exactly one tenant,
// no matter how often the same checkout is delivered.
type Provisioner struct {
	repo     domain.TenantRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner backed by the given repository.
func NewProvisioner(repo domain.TenantRepository, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

// Provision idempotently creates or updates the tenant described by the
// checkout data. Required fields are validated before any write. The
// lookup order (customer reference first, then contact email) lives in
// the repository's atomic upsert, so a second checkout with a different
// customer reference but the same email updates the first tenant rather
// than duplicating it.
func (p *Provisioner) Provision(ctx context.Context, data domain.CheckoutData) (ProvisionResult, error) {
	if err := p.validate.Struct(data); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field())
			}
			return ProvisionResult{}, &domain.ValidationError{Fields: fields}
		}
		return ProvisionResult{}, fmt.Errorf("validating checkout data: %w", err)
	}

	id, err := generateID()
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("generating tenant id: %w", err)
	}

	candidate := domain.NewTenant(id, data, time.Now().UTC())

	stored, created, err := p.repo.Upsert(ctx, candidate)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("upserting tenant: %w", err)
	}

	action := ActionUpdated
	if created {
		action = ActionCreated
	}

	p.logger.InfoContext(ctx, "tenant provisioned",
		"action", string(action),
		"tenant_id", stored.ID,
		"customer_ref", stored.ProviderCustomerRef,
	)

	return ProvisionResult{Action: action, TenantID: stored.ID}, nil
}
