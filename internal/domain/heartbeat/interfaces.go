package heartbeat

import (
	"context"
	"time"
)

// Repository provides persistence operations for heartbeats.
//
// InsertBatch skips rows that collide with an existing
// (user, timestamp, file) key and reports how many were stored.
type Repository interface {
	InsertBatch(ctx context.Context, hbs []Heartbeat) (int, error)
	ListByUserDay(ctx context.Context, userID, day string) ([]Heartbeat, error)
	ListByUserRange(ctx context.Context, userID string, start, end time.Time) ([]Heartbeat, error)
	SetSummaryID(ctx context.Context, userID, day, summaryID string) error
	ListUnsummarizedBefore(ctx context.Context, cutoff time.Time) ([]Heartbeat, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
