package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
)

type eventStore struct {
	db *sql.DB
}

// AppendEvents adds events to the owner's journal
func (s *eventStore) AppendEvents(ctx context.Context, owner string, events []storage.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO usage_events (owner, package_name, kind, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, owner, ev.AppID, ev.Kind, ev.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// QueryEvents returns journaled events in [start, end)
func (s *eventStore) QueryEvents(ctx context.Context, owner string, start, end time.Time) ([]storage.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, kind, ts FROM usage_events
		WHERE owner = ? AND ts >= ? AND ts < ?
		ORDER BY ts, seq
	`, owner, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []storage.EventRecord{}
	for rows.Next() {
		var (
			ev storage.EventRecord
			ts int64
		)
		if err := rows.Scan(&ev.AppID, &ev.Kind, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp = time.UnixMilli(ts)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return events, nil
}

// SetUsageAccess records whether the owner granted usage access
func (s *eventStore) SetUsageAccess(ctx context.Context, owner string, granted bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_access (owner, granted, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET granted = excluded.granted, updated_at = excluded.updated_at
	`, owner, granted, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set usage access: %w", err)
	}
	return nil
}

// UsageAccess reports whether the owner granted usage access
func (s *eventStore) UsageAccess(ctx context.Context, owner string) (bool, error) {
	var granted bool
	err := s.db.QueryRowContext(ctx, `SELECT granted FROM usage_access WHERE owner = ?`, owner).Scan(&granted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get usage access: %w", err)
	}
	return granted, nil
}

// DeleteEventsBefore prunes journal entries older than cutoff
func (s *eventStore) DeleteEventsBefore(ctx context.Context, owner string, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_events WHERE owner = ? AND ts < ?`, owner, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted events: %w", err)
	}
	return int(removed), nil
}
