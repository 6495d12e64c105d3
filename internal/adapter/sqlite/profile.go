package sqlite

import (
	"context"
	"fmt"

	"github.com/neolearn/subsync/internal/domain"
)

// ProfileRepository implements domain.ProfileRepository using SQLite.
type ProfileRepository struct {
	store *Store
}

// NewProfileRepository returns a profile repository backed by the store.
func NewProfileRepository(store *Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

func (r *ProfileRepository) Create(ctx context.Context, p domain.Profile) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO profiles (identity_id, role, display_name, email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.IdentityID, p.Role, p.DisplayName, p.Email,
		p.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Profile already provisioned; creation is idempotent.
			return nil
		}
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}
