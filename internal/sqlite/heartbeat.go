package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

// HeartbeatRepository implements heartbeat.Repository for SQLite
type HeartbeatRepository struct {
	db *DB
}

// NewHeartbeatRepository creates a new HeartbeatRepository
func NewHeartbeatRepository(db *DB) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// InsertBatch inserts heartbeats in one transaction, skipping rows that
// collide with an existing (user, timestamp, file) key. Returns the number
// of rows actually stored.
func (r *HeartbeatRepository) InsertBatch(ctx context.Context, hbs []heartbeat.Heartbeat) (int, error) {
	if len(hbs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO heartbeats
			(user_id, timestamp, project, language, editor, os, file, branch, summary_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, h := range hbs {
		result, err := stmt.ExecContext(ctx,
			h.UserID, h.Timestamp, h.Project, h.Language, h.Editor, h.OS, h.File, h.Branch, h.SummaryID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert heartbeat: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// ListByUserDay returns the user's heartbeats for one UTC calendar day,
// ascending by timestamp (insertion order breaks ties).
func (r *HeartbeatRepository) ListByUserDay(ctx context.Context, userID, day string) ([]heartbeat.Heartbeat, error) {
	dayStart, err := time.Parse(heartbeat.DayFormat, day)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return r.ListByUserRange(ctx, userID, dayStart, dayStart.AddDate(0, 0, 1))
}

// ListByUserRange returns the user's heartbeats with start <= t < end,
// ascending by timestamp.
func (r *HeartbeatRepository) ListByUserRange(ctx context.Context, userID string, start, end time.Time) ([]heartbeat.Heartbeat, error) {
	query := `
		SELECT id, user_id, timestamp, project, language, editor, os, file, branch, summary_id
		FROM heartbeats
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	defer rows.Close()

	return scanHeartbeats(rows)
}

// SetSummaryID back-links every heartbeat of the user-day whose summary id
// doesn't already match.
func (r *HeartbeatRepository) SetSummaryID(ctx context.Context, userID, day, summaryID string) error {
	dayStart, err := time.Parse(heartbeat.DayFormat, day)
	if err != nil {
		return fmt.Errorf("invalid day %q: %w", day, err)
	}

	query := `
		UPDATE heartbeats
		SET summary_id = ?
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		  AND (summary_id IS NULL OR summary_id != ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		summaryID, userID, dayStart.UnixMilli(), dayStart.AddDate(0, 0, 1).UnixMilli(), summaryID)
	if err != nil {
		return fmt.Errorf("failed to link heartbeats: %w", err)
	}
	return nil
}

// ListUnsummarizedBefore returns heartbeats older than the cutoff that do
// not belong to any summary yet, across all users.
func (r *HeartbeatRepository) ListUnsummarizedBefore(ctx context.Context, cutoff time.Time) ([]heartbeat.Heartbeat, error) {
	query := `
		SELECT id, user_id, timestamp, project, language, editor, os, file, branch, summary_id
		FROM heartbeats
		WHERE summary_id IS NULL AND timestamp < ?
		ORDER BY user_id ASC, timestamp ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list unsummarized heartbeats: %w", err)
	}
	defer rows.Close()

	return scanHeartbeats(rows)
}

// DeleteOlderThan purges heartbeats past the retention horizon.
func (r *HeartbeatRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM heartbeats WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge heartbeats: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanHeartbeats(rows rowScanner) ([]heartbeat.Heartbeat, error) {
	var hbs []heartbeat.Heartbeat
	for rows.Next() {
		var h heartbeat.Heartbeat
		err := rows.Scan(
			&h.ID, &h.UserID, &h.Timestamp,
			&h.Project, &h.Language, &h.Editor, &h.OS, &h.File, &h.Branch,
			&h.SummaryID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan heartbeat: %w", err)
		}
		hbs = append(hbs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating heartbeat rows: %w", err)
	}
	return hbs, nil
}
