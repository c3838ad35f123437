package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codepulse/codepulse/internal/domain/user"
	"github.com/codepulse/codepulse/internal/repository"
)

// UserRepository implements user.Repository for SQLite
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, api_key_hash, keystroke_timeout_minutes)
		VALUES (?, ?, ?)
	`, u.ID, u.APIKeyHash, u.KeystrokeTimeoutMinutes)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.queryOne(ctx, `
		SELECT id, api_key_hash, keystroke_timeout_minutes, created_at
		FROM users WHERE id = ?
	`, id)
}

// GetByAPIKeyHash retrieves a user by API key hash
func (r *UserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*user.User, error) {
	return r.queryOne(ctx, `
		SELECT id, api_key_hash, keystroke_timeout_minutes, created_at
		FROM users WHERE api_key_hash = ?
	`, hash)
}

func (r *UserRepository) queryOne(ctx context.Context, query string, arg any) (*user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.APIKeyHash, &u.KeystrokeTimeoutMinutes, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
