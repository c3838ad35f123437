package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

const (
	// Inter-day throttle for the per-day fetch loop, with a longer pause
	// every rateLimitEvery days to stay under upstream rate limits.
	dayFetchThrottle = 100 * time.Millisecond
	rateLimitPause   = time.Second
	rateLimitEvery   = 10
)

// APIPaginatedProvider imports from a per-day fetch style API: it discovers
// the active date range from a metadata endpoint, then requests heartbeats
// one calendar day at a time (plus a lookahead day), mapping each response
// through the user-agent parser.
type APIPaginatedProvider struct {
	dayProcessor
	client   *http.Client
	registry *Registry
	logger   *slog.Logger
}

// NewAPIPaginatedProvider creates the API-paginated import provider.
func NewAPIPaginatedProvider(client *http.Client, registry *Registry, builder DaySink, logger *slog.Logger) *APIPaginatedProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIPaginatedProvider{
		dayProcessor: dayProcessor{builder: builder, logger: logger},
		client:       client,
		registry:     registry,
		logger:       logger,
	}
}

type paginatedMetadata struct {
	Data struct {
		CreatedAt       time.Time `json:"created_at"`
		LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	} `json:"data"`
}

type paginatedDay struct {
	Data []struct {
		Time      float64 `json:"time"` // epoch seconds
		Entity    string  `json:"entity"`
		Project   string  `json:"project"`
		Branch    string  `json:"branch"`
		Language  string  `json:"language"`
		UserAgent string  `json:"user_agent"`
	} `json:"data"`
}

// Validate checks credentials against the metadata endpoint.
func (p *APIPaginatedProvider) Validate(ctx context.Context, job *Job) error {
	if job.APIKey == "" {
		return ErrMissingAPIKey
	}
	_, err := p.metadata(ctx, job)
	return err
}

// Process discovers the active range and fetches it day by day. A failed
// day fetch is logged and skipped; only metadata discovery failures abort
// the job.
func (p *APIPaginatedProvider) Process(ctx context.Context, job *Job) (map[string][]heartbeat.Heartbeat, error) {
	meta, err := p.metadata(ctx, job)
	if err != nil {
		return nil, err
	}

	first := meta.Data.CreatedAt.UTC()
	last := meta.Data.LastHeartbeatAt.UTC()
	if last.IsZero() {
		return map[string][]heartbeat.Heartbeat{}, nil
	}
	if first.IsZero() || first.After(last) {
		first = last
	}

	p.registry.Update(job.ID, func(j *Job) { j.Status = StatusProcessing })

	days := map[string][]heartbeat.Heartbeat{}
	fetched := 0
	// Fetch one day past the last observed heartbeat so boundary events
	// landing after the metadata snapshot aren't missed.
	for cursor := first; !cursor.After(last.AddDate(0, 0, 1)); cursor = cursor.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := cursor.Format(heartbeat.DayFormat)
		hbs, err := p.fetchDay(ctx, job, day)
		if err != nil {
			p.logger.Error("day fetch failed, skipping day", "job", job.ID, "day", day, "error", err)
		} else if len(hbs) > 0 {
			days[day] = hbs
		}

		fetched++
		pause := dayFetchThrottle
		if fetched%rateLimitEvery == 0 {
			pause = rateLimitPause
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
	return days, nil
}

func (p *APIPaginatedProvider) metadata(ctx context.Context, job *Job) (*paginatedMetadata, error) {
	resp, err := p.get(ctx, job, job.baseURL()+"/api/v1/users/current")
	if err != nil {
		return nil, fmt.Errorf("%w: fetching metadata: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: metadata endpoint returned %d", ErrUpstream, resp.StatusCode)
	}

	var meta paginatedMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", ErrUpstream, err)
	}
	return &meta, nil
}

func (p *APIPaginatedProvider) fetchDay(ctx context.Context, job *Job, day string) ([]heartbeat.Heartbeat, error) {
	url := fmt.Sprintf("%s/api/compat/wakatime/v1/users/current/heartbeats?date=%s", job.baseURL(), day)
	resp, err := p.get(ctx, job, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("day endpoint returned %d", resp.StatusCode)
	}

	var page paginatedDay
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding day response: %w", err)
	}

	hbs := make([]heartbeat.Heartbeat, 0, len(page.Data))
	for _, raw := range page.Data {
		editor, osName := ParseUserAgent(raw.UserAgent)
		hbs = append(hbs, heartbeat.Heartbeat{
			UserID:    job.UserID,
			Timestamp: int64(raw.Time * 1000),
			Project:   raw.Project,
			Language:  raw.Language,
			Editor:    editor,
			OS:        osName,
			File:      raw.Entity,
			Branch:    raw.Branch,
		})
	}
	return hbs, nil
}

func (p *APIPaginatedProvider) get(ctx context.Context, job *Job, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(job.APIKey, "")
	return p.client.Do(req)
}
