package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codepulse/codepulse/internal/domain/accounting"
	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/user"
	"github.com/codepulse/codepulse/internal/repository"
)

// DayMode tells the builder whether the day being processed is still
// accumulating heartbeats. The caller decides once, from the resolved
// date; the builder never re-derives it from the wall clock.
type DayMode int

const (
	// LiveDay is the current calendar day: heartbeats are persisted but
	// no summary is written, since the query path aggregates live days
	// on the fly.
	LiveDay DayMode = iota
	// ClosedDay is any fully elapsed day, eligible for final aggregation.
	ClosedDay
)

// ErrInvalidDay indicates a day key that is not YYYY-MM-DD.
var ErrInvalidDay = errors.New("invalid day key")

// persistBatchSize bounds each insert transaction while persisting a day.
const persistBatchSize = 2000

// Builder reconciles newly observed heartbeats for one user-day with
// persisted state. A closed day's summary is always a full recomputation
// over every heartbeat of the day, never a partial increment.
type Builder struct {
	heartbeats heartbeat.Repository
	summaries  Repository
	users      user.Repository
	logger     *slog.Logger
}

// NewBuilder creates a new daily summary builder.
func NewBuilder(hbs heartbeat.Repository, sums Repository, users user.Repository, logger *slog.Logger) *Builder {
	return &Builder{heartbeats: hbs, summaries: sums, users: users, logger: logger}
}

// Process persists the given heartbeats for one user-day and, in closed-day
// mode, re-aggregates the whole day into its summary.
//
// Failures inside the day pipeline are logged and the day is skipped: the
// method returns (nil, nil) so a multi-day import never aborts on one bad
// day. Only malformed input produces an error.
func (b *Builder) Process(ctx context.Context, userID, day string, hbs []heartbeat.Heartbeat, mode DayMode) (*Summary, error) {
	if _, err := time.Parse(heartbeat.DayFormat, day); err != nil {
		return nil, ErrInvalidDay
	}

	sum, err := b.process(ctx, userID, day, hbs, mode)
	if err != nil {
		b.logger.Error("day aggregation failed, skipping day", "user", userID, "day", day, "error", err)
		return nil, nil
	}
	return sum, nil
}

func (b *Builder) process(ctx context.Context, userID, day string, hbs []heartbeat.Heartbeat, mode DayMode) (*Summary, error) {
	if err := b.persist(ctx, userID, hbs); err != nil {
		return nil, err
	}
	if mode == LiveDay {
		return nil, nil
	}

	stored, err := b.heartbeats.ListByUserDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("loading day heartbeats: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	totals := accounting.ComputeTotals(stored, b.idleGap(ctx, userID))

	sum, err := b.summaries.GetByUserDay(ctx, userID, day)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("loading summary: %w", err)
		}
		sum = &Summary{ID: uuid.NewString(), UserID: userID, Day: day}
	}
	sum.ApplyTotals(totals)

	if err := b.summaries.Upsert(ctx, sum); err != nil {
		return nil, fmt.Errorf("upserting summary: %w", err)
	}

	if err := b.heartbeats.SetSummaryID(ctx, userID, day, sum.ID); err != nil {
		return nil, fmt.Errorf("linking heartbeats to summary: %w", err)
	}

	return sum, nil
}

func (b *Builder) persist(ctx context.Context, userID string, hbs []heartbeat.Heartbeat) error {
	for i := range hbs {
		hbs[i].UserID = userID
	}
	for start := 0; start < len(hbs); start += persistBatchSize {
		end := start + persistBatchSize
		if end > len(hbs) {
			end = len(hbs)
		}
		if _, err := b.heartbeats.InsertBatch(ctx, hbs[start:end]); err != nil {
			return fmt.Errorf("persisting heartbeats: %w", err)
		}
	}
	return nil
}

func (b *Builder) idleGap(ctx context.Context, userID string) time.Duration {
	u, err := b.users.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			b.logger.Warn("loading user idle threshold", "user", userID, "error", err)
		}
		return accounting.DefaultIdleGap
	}
	return u.IdleGap()
}
