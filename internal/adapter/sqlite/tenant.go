package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

const tenantColumns = `id, name, contact_name, contact_email, contact_phone, tax_id,
	 address_line, city, postal_code, country,
	 provider_customer_ref, provider_subscription_ref,
	 subscription_status, subscription_starts_at, subscription_ends_at,
	 linked_identity_id, plan_ref, max_collaborators, created_at, updated_at`

// TenantRepository implements domain.TenantRepository using SQLite.
type TenantRepository struct {
	store *Store
}

// NewTenantRepository returns a tenant repository backed by the store.
func NewTenantRepository(store *Store) *TenantRepository {
	return &TenantRepository{store: store}
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.store.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id,
	))
}

func (r *TenantRepository) GetByCustomerRef(ctx context.Context, ref string) (domain.Tenant, error) {
	return scanTenant(r.store.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE provider_customer_ref = ?`, ref,
	))
}

func (r *TenantRepository) GetBySubscriptionRef(ctx context.Context, ref string) (domain.Tenant, error) {
	return scanTenant(r.store.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE provider_subscription_ref = ? AND provider_subscription_ref != ''`, ref,
	))
}

func (r *TenantRepository) GetByContactEmail(ctx context.Context, email string) (domain.Tenant, error) {
	return scanTenant(r.store.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE contact_email = ?`, email,
	))
}

// Upsert creates the candidate or folds its checkout fields into the
// tenant already holding its customer reference or contact email. On a
// uniqueness violation (a concurrent delivery inserted the same tenant
// between our lookup and our insert) the attempt is retried once, which
// finds the freshly inserted row and turns the operation into an update.
func (r *TenantRepository) Upsert(ctx context.Context, candidate domain.Tenant) (domain.Tenant, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		tenant, created, err := r.tryUpsert(ctx, candidate)
		if err != nil && isUniqueViolation(err) && attempt == 0 {
			continue
		}
		if err != nil {
			return domain.Tenant{}, false, err
		}
		return tenant, created, nil
	}
	return domain.Tenant{}, false, &domain.ConflictError{Key: "customer_ref", Value: candidate.ProviderCustomerRef}
}

func (r *TenantRepository) tryUpsert(ctx context.Context, candidate domain.Tenant) (domain.Tenant, bool, error) {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, false, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanTenant(tx.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE provider_customer_ref = ?`,
		candidate.ProviderCustomerRef,
	))
	if errors.Is(err, domain.ErrTenantNotFound) {
		existing, err = scanTenant(tx.QueryRowContext(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE contact_email = ?`,
			candidate.ContactEmail,
		))
	}

	switch {
	case err == nil:
		merged := domain.MergeProvisioned(existing, candidate)
		if err := updateTenant(ctx, tx, merged); err != nil {
			return domain.Tenant{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Tenant{}, false, fmt.Errorf("committing upsert: %w", err)
		}
		return merged, false, nil

	case errors.Is(err, domain.ErrTenantNotFound):
		if err := insertTenant(ctx, tx, candidate); err != nil {
			return domain.Tenant{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Tenant{}, false, fmt.Errorf("committing upsert: %w", err)
		}
		return candidate, true, nil

	default:
		return domain.Tenant{}, false, err
	}
}

func (r *TenantRepository) Update(ctx context.Context, t domain.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := updateTenantResult(ctx, r.store.db, t)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

func (r *TenantRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	var args []any

	if filter.Status != nil {
		query += ` WHERE subscription_status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenantFromRows(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (r *TenantRepository) CountActiveCollaborators(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collaborators WHERE tenant_id = ? AND active = 1`, tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting collaborators: %w", err)
	}
	return count, nil
}

// AddCollaborator inserts a collaborator row. Used for usage reporting;
// collaborator lifecycle is otherwise owned by the wider platform.
func (r *TenantRepository) AddCollaborator(ctx context.Context, c domain.Collaborator) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO collaborators (id, tenant_id, name, email, active)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Email, c.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting collaborator: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTenant(ctx context.Context, db execer, t domain.Tenant) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.ContactName, t.ContactEmail, t.ContactPhone, t.TaxID,
		t.AddressLine, t.City, t.PostalCode, t.Country,
		t.ProviderCustomerRef, t.ProviderSubscriptionRef,
		string(t.SubscriptionStatus),
		t.SubscriptionStartsAt.Format(timeFormat),
		t.SubscriptionEndsAt.Format(timeFormat),
		t.LinkedIdentityID, t.PlanRef, t.MaxCollaborators,
		t.CreatedAt.Format(timeFormat),
		t.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func updateTenant(ctx context.Context, db execer, t domain.Tenant) error {
	_, err := updateTenantResult(ctx, db, t)
	return err
}

func updateTenantResult(ctx context.Context, db execer, t domain.Tenant) (sql.Result, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, contact_name = ?, contact_email = ?,
		 contact_phone = ?, tax_id = ?, address_line = ?, city = ?,
		 postal_code = ?, country = ?, provider_customer_ref = ?,
		 provider_subscription_ref = ?, subscription_status = ?,
		 subscription_starts_at = ?, subscription_ends_at = ?,
		 linked_identity_id = ?, plan_ref = ?, max_collaborators = ?,
		 updated_at = ?
		 WHERE id = ?`,
		t.Name, t.ContactName, t.ContactEmail,
		t.ContactPhone, t.TaxID, t.AddressLine, t.City,
		t.PostalCode, t.Country, t.ProviderCustomerRef,
		t.ProviderSubscriptionRef, string(t.SubscriptionStatus),
		t.SubscriptionStartsAt.Format(timeFormat),
		t.SubscriptionEndsAt.Format(timeFormat),
		t.LinkedIdentityID, t.PlanRef, t.MaxCollaborators,
		t.UpdatedAt.Format(timeFormat),
		t.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{Key: "contact_email", Value: t.ContactEmail}
		}
		return nil, fmt.Errorf("updating tenant: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row *sql.Row) (domain.Tenant, error) {
	t, err := scanTenantRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}
	return t, nil
}

func scanTenantFromRows(rows *sql.Rows) (domain.Tenant, error) {
	t, err := scanTenantRow(rows)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}
	return t, nil
}

func scanTenantRow(row rowScanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, startsAt, endsAt, createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.Name, &t.ContactName, &t.ContactEmail, &t.ContactPhone, &t.TaxID,
		&t.AddressLine, &t.City, &t.PostalCode, &t.Country,
		&t.ProviderCustomerRef, &t.ProviderSubscriptionRef,
		&status, &startsAt, &endsAt,
		&t.LinkedIdentityID, &t.PlanRef, &t.MaxCollaborators,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Tenant{}, err
	}

	t.SubscriptionStatus = domain.SubscriptionStatus(status)
	t.SubscriptionStartsAt, _ = time.Parse(timeFormat, startsAt)
	t.SubscriptionEndsAt, _ = time.Parse(timeFormat, endsAt)
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return t, nil
}
