package postgres

import (
	"context"
	"fmt"

	"socialecho/internal/audit"
	"socialecho/internal/domain"
	"socialecho/pkg/errors"

	"github.com/jmoiron/sqlx"
)

type LogRepository struct {
	db *sqlx.DB
}

func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) Create(ctx context.Context, entry *domain.LogEntry) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, email, message, type, level, endpoint, method,
			ip, country, city, browser, os, platform, device, device_type,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Email, entry.Message, entry.Type,
		entry.Level, entry.Endpoint, entry.Method,
		entry.Context.IP, entry.Context.Country, entry.Context.City,
		entry.Context.Browser, entry.Context.OS, entry.Context.Platform,
		entry.Context.Device, entry.Context.DeviceType,
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create audit log")
	}

	return nil
}

// Find returns a page of entries newest first, plus the total count matching
// the filter.
func (r *LogRepository) Find(ctx context.Context, filter audit.Filter) ([]*domain.LogEntry, int, error) {
	where := ""
	args := []interface{}{}

	if filter.Level != "" {
		args = append(args, filter.Level)
		where += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE 1=1` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count audit logs")
	}

	args = append(args, filter.Limit)
	limitPos := len(args)
	args = append(args, filter.Offset)
	offsetPos := len(args)

	query := `
		SELECT id, user_id, email, message, type, level, endpoint, method,
			ip AS "context.ip", country AS "context.country",
			city AS "context.city", browser AS "context.browser",
			os AS "context.os", platform AS "context.platform",
			device AS "context.device", device_type AS "context.device_type",
			created_at
		FROM audit_logs WHERE 1=1` + where + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, limitPos, offsetPos)

	var entries []*domain.LogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list audit logs")
	}

	return entries, total, nil
}

func (r *LogRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs`); err != nil {
		return errors.Wrap(err, "failed to clear audit logs")
	}

	return nil
}
