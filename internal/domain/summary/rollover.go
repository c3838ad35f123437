package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codepulse/codepulse/internal/domain/accounting"
	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

// Rollover periodically sweeps heartbeats strictly older than yesterday
// that never got attached to a summary, folds them into per-project
// rollover rows, and purges heartbeats past the retention horizon.
type Rollover struct {
	heartbeats heartbeat.Repository
	summaries  Repository
	retention  time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

// NewRollover creates the closed-day rollover worker.
func NewRollover(hbs heartbeat.Repository, sums Repository, retention, interval time.Duration, logger *slog.Logger) *Rollover {
	return &Rollover{
		heartbeats: hbs,
		summaries:  sums,
		retention:  retention,
		interval:   interval,
		logger:     logger,
	}
}

// Start runs the sweep loop until the context is canceled.
func (r *Rollover) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.Sweep(ctx); err != nil {
		r.logger.Error("rollover sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("rollover sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one rollover pass.
func (r *Rollover) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	pending, err := r.heartbeats.ListUnsummarizedBefore(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("listing unsummarized heartbeats: %w", err)
	}

	groups := map[string][]heartbeat.Heartbeat{}
	for _, h := range pending {
		key := h.UserID + "\x00" + h.Project + "\x00" + h.Day()
		groups[key] = append(groups[key], h)
	}

	for _, group := range groups {
		first := group[0]
		project := first.Project
		if project == "" {
			project = accounting.UnknownProject
		}
		total := accounting.ComputeTotal(group, accounting.DefaultIdleGap)
		ps := &ProjectSummary{
			UserID:       first.UserID,
			Day:          first.Day(),
			Project:      project,
			TotalSeconds: total,
		}
		if err := r.summaries.UpsertProjectTotal(ctx, ps); err != nil {
			r.logger.Error("rollover upsert failed, skipping group",
				"user", ps.UserID, "day", ps.Day, "project", ps.Project, "error", err)
		}
	}

	var purged int64
	if r.retention > 0 {
		purged, err = r.heartbeats.DeleteOlderThan(ctx, now.Add(-r.retention))
		if err != nil {
			return fmt.Errorf("purging expired heartbeats: %w", err)
		}
	}
	if len(groups) > 0 || purged > 0 {
		r.logger.Info("rollover sweep complete", "groups", len(groups), "purged", purged)
	}
	return nil
}
