package postgres

import (
	"context"
	"database/sql"
	"time"

	"socialecho/internal/domain"
	"socialecho/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ResetRepository struct {
	db *sqlx.DB
}

func NewResetRepository(db *sqlx.DB) *ResetRepository {
	return &ResetRepository{db: db}
}

// Replace keeps at most one live reset token per user.
func (r *ResetRepository) Replace(ctx context.Context, token *domain.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			created_at = EXCLUDED.created_at`

	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to store reset token")
	}

	return nil
}

func (r *ResetRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.PasswordResetToken, error) {
	var token domain.PasswordResetToken
	query := `
		SELECT id, user_id, token_hash, created_at
		FROM password_reset_tokens WHERE user_id = $1`

	err := r.db.GetContext(ctx, &token, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrResetTokenInvalid
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reset token")
	}

	return &token, nil
}

func (r *ResetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete reset token")
	}

	return nil
}

// DeleteCreatedBefore prunes reset tokens past their validity window.
func (r *ResetRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune stale reset tokens")
	}

	return result.RowsAffected()
}
