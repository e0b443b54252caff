package postgres

import (
	"context"
	"database/sql"

	"socialecho/internal/contextauth"
	"socialecho/internal/domain"
	"socialecho/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ContextRepository struct {
	db *sqlx.DB
}

func NewContextRepository(db *sqlx.DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Upsert inserts the context or refreshes an existing one matching the same
// (user_id, ip, browser, os, platform) tuple. Trust and block flags are
// preserved on conflict; only the mutable location fields refresh. On return
// record.ID holds the stored row's ID, which differs from the input when the
// tuple already existed.
func (r *ContextRepository) Upsert(ctx context.Context, record *domain.UserContext) error {
	query := `
		INSERT INTO user_contexts (
			id, user_id, ip, country, city, browser, os, platform,
			device, device_type, is_trusted, is_blocked, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, ip, browser, os, platform) DO UPDATE
		SET country = EXCLUDED.country,
			city = EXCLUDED.city,
			device = EXCLUDED.device,
			device_type = EXCLUDED.device_type
		RETURNING id`

	err := r.db.GetContext(ctx, &record.ID, query,
		record.ID, record.UserID, record.IP, record.Country, record.City,
		record.Browser, record.OS, record.Platform, record.Device,
		record.DeviceType, record.IsTrusted, record.IsBlocked, record.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert user context")
	}

	return nil
}

func (r *ContextRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserContext, error) {
	var records []*domain.UserContext
	query := `
		SELECT id, user_id, ip, country, city, browser, os, platform,
			device, device_type, is_trusted, is_blocked, created_at
		FROM user_contexts WHERE user_id = $1
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list user contexts")
	}

	return records, nil
}

func (r *ContextRepository) FindByUserFiltered(ctx context.Context, userID uuid.UUID, filter contextauth.Filter) ([]*domain.UserContext, error) {
	query := `
		SELECT id, user_id, ip, country, city, browser, os, platform,
			device, device_type, is_trusted, is_blocked, created_at
		FROM user_contexts WHERE user_id = $1`

	switch filter {
	case contextauth.FilterTrusted:
		query += ` AND is_trusted = true AND is_blocked = false`
	case contextauth.FilterBlocked:
		query += ` AND is_blocked = true`
	case contextauth.FilterPending:
		query += ` AND is_trusted = false AND is_blocked = false`
	}
	query += ` ORDER BY created_at DESC`

	var records []*domain.UserContext
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list user contexts")
	}

	return records, nil
}

func (r *ContextRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.UserContext, error) {
	var record domain.UserContext
	query := `
		SELECT id, user_id, ip, country, city, browser, os, platform,
			device, device_type, is_trusted, is_blocked, created_at
		FROM user_contexts WHERE id = $1`

	err := r.db.GetContext(ctx, &record, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrContextNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user context")
	}

	return &record, nil
}

func (r *ContextRepository) SetTrusted(ctx context.Context, id uuid.UUID, trusted bool) error {
	query := `UPDATE user_contexts SET is_trusted = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, trusted)
	if err != nil {
		return errors.Wrap(err, "failed to update context trust")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.ErrContextNotFound
	}

	return nil
}

func (r *ContextRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	query := `UPDATE user_contexts SET is_blocked = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, blocked)
	if err != nil {
		return errors.Wrap(err, "failed to update context block")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.ErrContextNotFound
	}

	return nil
}

func (r *ContextRepository) TrustPendingByUser(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE user_contexts SET is_trusted = true
		WHERE user_id = $1 AND is_trusted = false AND is_blocked = false`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return errors.Wrap(err, "failed to promote pending contexts")
	}

	return nil
}

func (r *ContextRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM user_contexts WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete user context")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.ErrContextNotFound
	}

	return nil
}
