package summary

import "context"

// Repository provides persistence operations for summaries.
type Repository interface {
	// Upsert creates the summary or fully replaces the numeric fields of
	// the existing (user, day) row.
	Upsert(ctx context.Context, s *Summary) error
	GetByUserDay(ctx context.Context, userID, day string) (*Summary, error)
	// UpsertProjectTotal writes a legacy per-project rollover row.
	UpsertProjectTotal(ctx context.Context, ps *ProjectSummary) error
}
