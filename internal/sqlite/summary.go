package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/repository"
)

// dimension types stored in summary_items
const (
	itemProjects  = "projects"
	itemLanguages = "languages"
	itemEditors   = "editors"
	itemOS        = "os"
	itemFiles     = "files"
	itemBranches  = "branches"
)

// SummaryRepository implements summary.Repository for SQLite
type SummaryRepository struct {
	db *DB
}

// NewSummaryRepository creates a new SummaryRepository
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Upsert creates the summary or fully replaces the numeric fields of the
// existing (user, day) row, including all per-dimension items.
func (r *SummaryRepository) Upsert(ctx context.Context, s *summary.Summary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summaries (id, user_id, day, total_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET total_seconds = excluded.total_seconds
	`, s.ID, s.UserID, s.Day, s.TotalSeconds)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	// The row may predate this aggregation pass; resolve the canonical id.
	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM summaries WHERE user_id = ? AND day = ?`, s.UserID, s.Day).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to resolve summary id: %w", err)
	}
	s.ID = id

	if _, err := tx.ExecContext(ctx, `DELETE FROM summary_items WHERE summary_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear summary items: %w", err)
	}

	items := map[string]map[string]int64{
		itemProjects:  s.Projects,
		itemLanguages: s.Languages,
		itemEditors:   s.Editors,
		itemOS:        s.OS,
		itemFiles:     s.Files,
		itemBranches:  s.Branches,
	}
	for itemType, values := range items {
		for name, seconds := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO summary_items (summary_id, type, name, seconds)
				VALUES (?, ?, ?, ?)
			`, id, itemType, name, seconds)
			if err != nil {
				return fmt.Errorf("failed to insert summary item: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetByUserDay loads a summary with its per-dimension breakdown.
func (r *SummaryRepository) GetByUserDay(ctx context.Context, userID, day string) (*summary.Summary, error) {
	s := &summary.Summary{
		Projects:  map[string]int64{},
		Languages: map[string]int64{},
		Editors:   map[string]int64{},
		OS:        map[string]int64{},
		Files:     map[string]int64{},
		Branches:  map[string]int64{},
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, day, total_seconds FROM summaries WHERE user_id = ? AND day = ?`,
		userID, day).Scan(&s.ID, &s.UserID, &s.Day, &s.TotalSeconds)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, name, seconds FROM summary_items WHERE summary_id = ?`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemType, name string
		var seconds int64
		if err := rows.Scan(&itemType, &name, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan summary item: %w", err)
		}
		switch itemType {
		case itemProjects:
			s.Projects[name] = seconds
		case itemLanguages:
			s.Languages[name] = seconds
		case itemEditors:
			s.Editors[name] = seconds
		case itemOS:
			s.OS[name] = seconds
		case itemFiles:
			s.Files[name] = seconds
		case itemBranches:
			s.Branches[name] = seconds
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary items: %w", err)
	}

	return s, nil
}

// UpsertProjectTotal writes a legacy per-project rollover row.
func (r *SummaryRepository) UpsertProjectTotal(ctx context.Context, ps *summary.ProjectSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_summaries (user_id, day, project, total_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, day, project) DO UPDATE SET total_seconds = excluded.total_seconds
	`, ps.UserID, ps.Day, ps.Project, ps.TotalSeconds)
	if err != nil {
		return fmt.Errorf("failed to upsert project summary: %w", err)
	}
	return nil
}
