package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codepulse/codepulse/internal/domain/accounting"
	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/domain/user"
	"github.com/codepulse/codepulse/internal/repository"
)

// Request describes a summaries query.
type Request struct {
	Range         TimeRange
	OffsetSeconds int
	Project       string
	// Start and End bound a custom-range query; ignored otherwise.
	Start time.Time
	End   time.Time
}

// DaySummary is one day of the response.
type DaySummary struct {
	Date         string           `json:"date"`
	TotalSeconds int64            `json:"total_seconds"`
	Projects     map[string]int64 `json:"projects"`
	Languages    map[string]int64 `json:"languages"`
	Editors      map[string]int64 `json:"editors"`
	OS           map[string]int64 `json:"os"`
	Files        map[string]int64 `json:"files"`
	Branches     map[string]int64 `json:"branches"`
	// HourlyData holds 24 per-UTC-hour totals for today/yesterday queries.
	// Each hour is accounted as an independent window that re-bootstraps
	// its first heartbeat, so the buckets need not sum to TotalSeconds.
	HourlyData []int64 `json:"hourly_data,omitempty"`
}

// Response is the assembled query result.
type Response struct {
	Summaries      []DaySummary `json:"summaries"`
	OffsetSeconds  int          `json:"offset_seconds"`
	ProjectFilter  string       `json:"project_filter,omitempty"`
	ProjectSeconds int64        `json:"project_seconds,omitempty"`
}

// Service assembles query responses from persisted summaries, falling back
// to on-the-fly aggregation for any day lacking one. Only the daily summary
// builder writes summaries; the query path never does.
type Service struct {
	heartbeats heartbeat.Repository
	summaries  summary.Repository
	users      user.Repository
	logger     *slog.Logger
}

// NewService creates a new query service.
func NewService(hbs heartbeat.Repository, sums summary.Repository, users user.Repository, logger *slog.Logger) *Service {
	return &Service{heartbeats: hbs, summaries: sums, users: users, logger: logger}
}

// Summaries returns per-day summaries for the resolved window, ascending by
// date. Days with no activity are omitted; a day whose aggregation fails is
// logged and skipped rather than failing the whole range.
func (s *Service) Summaries(ctx context.Context, userID string, req Request) (*Response, error) {
	start, end, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	days, err := s.collectDays(ctx, userID, start, end, req.Range.hasHourlyBreakdown())
	if err != nil {
		return nil, err
	}

	resp := &Response{Summaries: days, OffsetSeconds: req.OffsetSeconds}
	if req.Project != "" {
		resp.ProjectFilter = req.Project
		resp.ProjectSeconds = projectSeconds(days, req.Project)
	}
	return resp, nil
}

// ProjectStats returns the elapsed seconds for a single project across the
// window. Project matching is case-insensitive.
func (s *Service) ProjectStats(ctx context.Context, userID string, req Request) (int64, error) {
	start, end, err := s.resolve(req)
	if err != nil {
		return 0, err
	}
	days, err := s.collectDays(ctx, userID, start, end, false)
	if err != nil {
		return 0, err
	}
	return projectSeconds(days, req.Project), nil
}

func (s *Service) resolve(req Request) (time.Time, time.Time, error) {
	if req.Range == RangeCustom {
		if req.Start.IsZero() || req.End.IsZero() || req.End.Before(req.Start) {
			return time.Time{}, time.Time{}, ErrCustomRangeBounds
		}
		return req.Start, req.End, nil
	}
	return Resolve(req.Range, req.OffsetSeconds, time.Now().UTC())
}

func (s *Service) collectDays(ctx context.Context, userID string, start, end time.Time, hourly bool) ([]DaySummary, error) {
	startUTC := start.UTC()
	dayStart := time.Date(startUTC.Year(), startUTC.Month(), startUTC.Day(), 0, 0, 0, 0, time.UTC)

	var days []DaySummary
	for cursor := dayStart; cursor.Before(end); cursor = cursor.AddDate(0, 0, 1) {
		day := cursor.Format(heartbeat.DayFormat)
		ds, err := s.buildDay(ctx, userID, day, hourly)
		if err != nil {
			s.logger.Error("day aggregation failed, skipping day", "user", userID, "day", day, "error", err)
			continue
		}
		if ds == nil {
			continue
		}
		days = append(days, *ds)
	}
	return days, nil
}

// buildDay prefers a persisted summary and falls back to running the
// accounting engine over the day's raw heartbeats. The fallback result is
// never written back.
func (s *Service) buildDay(ctx context.Context, userID, day string, hourly bool) (*DaySummary, error) {
	var ds *DaySummary
	var raw []heartbeat.Heartbeat

	sum, err := s.summaries.GetByUserDay(ctx, userID, day)
	switch {
	case err == nil:
		ds = &DaySummary{
			Date:         sum.Day,
			TotalSeconds: sum.TotalSeconds,
			Projects:     sum.Projects,
			Languages:    sum.Languages,
			Editors:      sum.Editors,
			OS:           sum.OS,
			Files:        sum.Files,
			Branches:     sum.Branches,
		}
	case errors.Is(err, repository.ErrNotFound):
		raw, err = s.heartbeats.ListByUserDay(ctx, userID, day)
		if err != nil {
			return nil, fmt.Errorf("loading heartbeats: %w", err)
		}
		if len(raw) == 0 {
			return nil, nil
		}
		totals := accounting.ComputeTotals(raw, s.idleGap(ctx, userID))
		ds = &DaySummary{
			Date:         day,
			TotalSeconds: totals.TotalSeconds,
			Projects:     totals.Projects,
			Languages:    totals.Languages,
			Editors:      totals.Editors,
			OS:           totals.OS,
			Files:        totals.Files,
			Branches:     totals.Branches,
		}
	default:
		return nil, fmt.Errorf("loading summary: %w", err)
	}

	if ds.TotalSeconds == 0 && len(ds.Projects) == 0 {
		return nil, nil
	}

	if hourly {
		if raw == nil {
			raw, err = s.heartbeats.ListByUserDay(ctx, userID, day)
			if err != nil {
				return nil, fmt.Errorf("loading heartbeats for hourly breakdown: %w", err)
			}
		}
		ds.HourlyData = hourlyTotals(raw, s.idleGap(ctx, userID))
	}

	return ds, nil
}

// hourlyTotals buckets a day's heartbeats by UTC hour and accounts each
// bucket independently.
func hourlyTotals(hbs []heartbeat.Heartbeat, idleGap time.Duration) []int64 {
	buckets := make([][]heartbeat.Heartbeat, 24)
	for _, h := range hbs {
		hour := h.Time().Hour()
		buckets[hour] = append(buckets[hour], h)
	}
	out := make([]int64, 24)
	for i, bucket := range buckets {
		if len(bucket) > 0 {
			out[i] = accounting.ComputeTotal(bucket, idleGap)
		}
	}
	return out
}

func projectSeconds(days []DaySummary, project string) int64 {
	var total int64
	for _, d := range days {
		for name, secs := range d.Projects {
			if strings.EqualFold(name, project) {
				total += secs
			}
		}
	}
	return total
}

func (s *Service) idleGap(ctx context.Context, userID string) time.Duration {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return accounting.DefaultIdleGap
	}
	return u.IdleGap()
}
