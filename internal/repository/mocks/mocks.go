package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/domain/user"
)

// HeartbeatRepository is a mock for heartbeat.Repository.
type HeartbeatRepository struct {
	mock.Mock
}

func (m *HeartbeatRepository) InsertBatch(ctx context.Context, hbs []heartbeat.Heartbeat) (int, error) {
	args := m.Called(ctx, hbs)
	return args.Int(0), args.Error(1)
}

func (m *HeartbeatRepository) ListByUserDay(ctx context.Context, userID, day string) ([]heartbeat.Heartbeat, error) {
	args := m.Called(ctx, userID, day)
	if hbs, ok := args.Get(0).([]heartbeat.Heartbeat); ok {
		return hbs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HeartbeatRepository) ListByUserRange(ctx context.Context, userID string, start, end time.Time) ([]heartbeat.Heartbeat, error) {
	args := m.Called(ctx, userID, start, end)
	if hbs, ok := args.Get(0).([]heartbeat.Heartbeat); ok {
		return hbs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HeartbeatRepository) SetSummaryID(ctx context.Context, userID, day, summaryID string) error {
	args := m.Called(ctx, userID, day, summaryID)
	return args.Error(0)
}

func (m *HeartbeatRepository) ListUnsummarizedBefore(ctx context.Context, cutoff time.Time) ([]heartbeat.Heartbeat, error) {
	args := m.Called(ctx, cutoff)
	if hbs, ok := args.Get(0).([]heartbeat.Heartbeat); ok {
		return hbs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HeartbeatRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// SummaryRepository is a mock for summary.Repository.
type SummaryRepository struct {
	mock.Mock
}

func (m *SummaryRepository) Upsert(ctx context.Context, s *summary.Summary) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *SummaryRepository) GetByUserDay(ctx context.Context, userID, day string) (*summary.Summary, error) {
	args := m.Called(ctx, userID, day)
	if s, ok := args.Get(0).(*summary.Summary); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SummaryRepository) UpsertProjectTotal(ctx context.Context, ps *summary.ProjectSummary) error {
	args := m.Called(ctx, ps)
	return args.Error(0)
}

// UserRepository is a mock for user.Repository.
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*user.User, error) {
	args := m.Called(ctx, hash)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
