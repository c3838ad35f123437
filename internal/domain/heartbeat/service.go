package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
)

// MaxBatchSize bounds a single ingest call.
const MaxBatchSize = 2000

// Service handles heartbeat ingestion.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new heartbeat service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Ingest validates and persists a batch of heartbeats for one user.
// Duplicates of already-stored heartbeats (same user, timestamp, file)
// are silently dropped by the store. Returns the number of rows stored.
func (s *Service) Ingest(ctx context.Context, userID string, hbs []Heartbeat) (int, error) {
	if len(hbs) == 0 {
		return 0, nil
	}
	if len(hbs) > MaxBatchSize {
		return 0, ErrBatchTooLarge
	}

	for i := range hbs {
		if hbs[i].Timestamp <= 0 {
			return 0, ErrInvalidInput
		}
		hbs[i].UserID = userID
	}

	accepted, err := s.repo.InsertBatch(ctx, hbs)
	if err != nil {
		return 0, fmt.Errorf("inserting heartbeats: %w", err)
	}

	s.logger.Debug("ingested heartbeats", "user", userID, "received", len(hbs), "stored", accepted)
	return accepted, nil
}
