package postgres

import (
	"context"
	"database/sql"

	"socialecho/internal/domain"
	"socialecho/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PreferenceRepository struct {
	db *sqlx.DB
}

func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	var pref domain.UserPreference
	query := `
		SELECT id, user_id, enable_context_based_auth, updated_at
		FROM user_preferences WHERE user_id = $1`

	err := r.db.GetContext(ctx, &pref, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user preferences")
	}

	return &pref, nil
}

// Upsert writes the preference row, keyed by user. One row per user.
func (r *PreferenceRepository) Upsert(ctx context.Context, pref *domain.UserPreference) error {
	query := `
		INSERT INTO user_preferences (id, user_id, enable_context_based_auth, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET enable_context_based_auth = EXCLUDED.enable_context_based_auth,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		pref.ID, pref.UserID, pref.EnableContextBasedAuth, pref.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert user preferences")
	}

	return nil
}
