package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codepulse/codepulse/internal/repository"
)

// ErrUnauthorized indicates a missing or unknown API key.
var ErrUnauthorized = errors.New("unauthorized: invalid api key")

// Service resolves API keys to users and exposes per-user settings.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new user service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ResolveAPIKey returns the user owning the given API key.
func (s *Service) ResolveAPIKey(ctx context.Context, key string) (*User, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.repo.GetByAPIKeyHash(ctx, HashAPIKey(key))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("resolving api key: %w", err)
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}
