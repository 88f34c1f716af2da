package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
	"github.com/google/uuid"
)

type limitStore struct {
	db *sql.DB
}

const limitColumns = `id, user_id, package_name, app_name, time_limit_value, session_limit_value,
	time_limit_enabled, session_limit_enabled, is_public, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLimit(row rowScanner) (*storage.LimitRecord, error) {
	var (
		r                    storage.LimitRecord
		timeValue, sessValue sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.PackageName, &r.AppName, &timeValue, &sessValue,
		&r.TimeLimitEnabled, &r.SessionLimitEnabled, &r.IsPublic, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	r.TimeLimitValue = nullToUint32(timeValue)
	r.SessionLimitValue = nullToUint32(sessValue)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}

// SaveLimit upserts one limit type for an app
func (s *limitStore) SaveLimit(ctx context.Context, owner, appID string, limitType storage.LimitType, value *uint32, meta storage.LimitMeta) (*storage.LimitRecord, error) {
	if limitType != storage.LimitTime && limitType != storage.LimitSessions {
		return nil, fmt.Errorf("invalid limit type: %q", limitType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()

	record, err := scanLimit(tx.QueryRowContext(ctx,
		`SELECT `+limitColumns+` FROM app_limits WHERE user_id = ? AND package_name = ?`, owner, appID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		record = &storage.LimitRecord{
			ID:          uuid.NewString(),
			UserID:      owner,
			PackageName: appID,
			AppName:     appID,
			CreatedAt:   time.UnixMilli(now).UTC(),
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load limit: %w", err)
	}

	record.Apply(limitType, value)
	if meta.AppName != "" {
		record.AppName = meta.AppName
	}
	if meta.Public != nil {
		record.IsPublic = *meta.Public
	}
	record.UpdatedAt = time.UnixMilli(now).UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO app_limits (`+limitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, package_name) DO UPDATE SET
			app_name = excluded.app_name,
			time_limit_value = excluded.time_limit_value,
			session_limit_value = excluded.session_limit_value,
			time_limit_enabled = excluded.time_limit_enabled,
			session_limit_enabled = excluded.session_limit_enabled,
			is_public = excluded.is_public,
			updated_at = excluded.updated_at
	`,
		record.ID, record.UserID, record.PackageName, record.AppName,
		uint32ToNull(record.TimeLimitValue), uint32ToNull(record.SessionLimitValue),
		record.TimeLimitEnabled, record.SessionLimitEnabled, record.IsPublic,
		record.CreatedAt.UnixMilli(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save limit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit limit: %w", err)
	}

	return record, nil
}

// GetLimit retrieves the limit record for an app
func (s *limitStore) GetLimit(ctx context.Context, owner, appID string) (*storage.LimitRecord, error) {
	record, err := scanLimit(s.db.QueryRowContext(ctx,
		`SELECT `+limitColumns+` FROM app_limits WHERE user_id = ? AND package_name = ?`, owner, appID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limit: %w", err)
	}
	return record, nil
}

// ListLimits returns all limit records for an owner
func (s *limitStore) ListLimits(ctx context.Context, owner string) ([]storage.LimitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+limitColumns+` FROM app_limits WHERE user_id = ? ORDER BY package_name`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list limits: %w", err)
	}
	defer rows.Close()

	records := []storage.LimitRecord{}
	for rows.Next() {
		record, err := scanLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan limit: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list limits: %w", err)
	}

	return records, nil
}

// DeleteLimit removes the limit record for an app
func (s *limitStore) DeleteLimit(ctx context.Context, owner, appID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM app_limits WHERE user_id = ? AND package_name = ?`, owner, appID); err != nil {
		return fmt.Errorf("failed to delete limit: %w", err)
	}
	return nil
}

func nullToUint32(n sql.NullInt64) *uint32 {
	if !n.Valid {
		return nil
	}
	v := uint32(n.Int64)
	return &v
}

func uint32ToNull(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
