package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

// Poll ceiling for the server-side export: 180 attempts at 10s each puts a
// 30 minute cap on waiting for the dump.
var dataDumpRetry = RetryPolicy{MaxAttempts: 180, Interval: 10 * time.Second}

// APIPollProvider imports from a large-export style API: it requests an
// asynchronous server-side dump of all heartbeats, polls until the dump is
// ready, downloads it, and resolves editor/OS per heartbeat through the
// provider's paginated user-agents endpoint.
type APIPollProvider struct {
	dayProcessor
	client   *http.Client
	registry *Registry
	logger   *slog.Logger
}

// NewAPIPollProvider creates the API-polling import provider.
func NewAPIPollProvider(client *http.Client, registry *Registry, builder DaySink, logger *slog.Logger) *APIPollProvider {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &APIPollProvider{
		dayProcessor: dayProcessor{builder: builder, logger: logger},
		client:       client,
		registry:     registry,
		logger:       logger,
	}
}

type dumpStatusResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		Status      string `json:"status"`
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

type dumpFile struct {
	Days []struct {
		Date       string          `json:"date"`
		Heartbeats []dumpHeartbeat `json:"heartbeats"`
	} `json:"days"`
}

type dumpHeartbeat struct {
	Time        float64 `json:"time"` // epoch seconds
	Entity      string  `json:"entity"`
	Project     string  `json:"project"`
	Branch      string  `json:"branch"`
	Language    string  `json:"language"`
	UserAgentID string  `json:"user_agent_id"`
}

type userAgentsPage struct {
	Data []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"data"`
	TotalPages int `json:"total_pages"`
}

// Validate checks that the API key is accepted by the provider.
func (p *APIPollProvider) Validate(ctx context.Context, job *Job) error {
	if job.APIKey == "" {
		return ErrMissingAPIKey
	}
	resp, err := p.get(ctx, job, job.baseURL()+"/api/v1/users/current")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: metadata endpoint returned %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// Process requests the dump, waits for it, downloads it, and normalizes it
// into date-grouped canonical heartbeats.
func (p *APIPollProvider) Process(ctx context.Context, job *Job) (map[string][]heartbeat.Heartbeat, error) {
	p.setStatus(job.ID, StatusCreatingDataDumpRequest)
	if err := p.requestDump(ctx, job); err != nil {
		return nil, err
	}

	p.setStatus(job.ID, StatusWaitingForDataDump)
	downloadURL, err := p.awaitDump(ctx, job)
	if err != nil {
		return nil, err
	}

	p.setStatus(job.ID, StatusDownloading)
	dump, err := p.download(ctx, job, downloadURL)
	if err != nil {
		return nil, err
	}

	p.setStatus(job.ID, StatusProcessing)
	agents, err := p.fetchUserAgents(ctx, job)
	if err != nil {
		return nil, err
	}

	days := make(map[string][]heartbeat.Heartbeat, len(dump.Days))
	for _, day := range dump.Days {
		for _, dh := range day.Heartbeats {
			hb := heartbeat.Heartbeat{
				UserID:    job.UserID,
				Timestamp: int64(dh.Time * 1000),
				Project:   dh.Project,
				Language:  dh.Language,
				File:      dh.Entity,
				Branch:    dh.Branch,
			}
			if ua, ok := agents[dh.UserAgentID]; ok {
				hb.Editor, hb.OS = ua.editor, ua.os
			}
			days[day.Date] = append(days[day.Date], hb)
		}
	}
	return days, nil
}

func (p *APIPollProvider) requestDump(ctx context.Context, job *Job) error {
	body := bytes.NewBufferString(`{"type":"heartbeats"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.baseURL()+"/api/v1/users/current/data_dumps", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(job.APIKey, "")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: requesting data dump: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	// 400 usually means a dump already exists from a prior attempt; the
	// poll loop picks it up either way.
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: data dump request returned %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

func (p *APIPollProvider) awaitDump(ctx context.Context, job *Job) (string, error) {
	var downloadURL string
	err := dataDumpRetry.Do(ctx, func(ctx context.Context) (bool, error) {
		resp, err := p.get(ctx, job, job.baseURL()+"/api/v1/users/current/data_dumps")
		if err != nil {
			return false, fmt.Errorf("%w: polling data dump: %v", ErrUpstream, err)
		}
		defer resp.Body.Close()

		var status dumpStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false, fmt.Errorf("%w: decoding dump status: %v", ErrUpstream, err)
		}
		for _, d := range status.Data {
			if d.Type == "heartbeats" && d.Status == "Completed" && d.DownloadURL != "" {
				downloadURL = d.DownloadURL
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			return "", fmt.Errorf("%w: data dump not ready within poll ceiling", ErrUpstream)
		}
		return "", err
	}
	return downloadURL, nil
}

func (p *APIPollProvider) download(ctx context.Context, job *Job, url string) (*dumpFile, error) {
	resp, err := p.get(ctx, job, url)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading dump: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: dump download returned %d", ErrUpstream, resp.StatusCode)
	}

	var dump dumpFile
	if err := json.NewDecoder(resp.Body).Decode(&dump); err != nil {
		return nil, fmt.Errorf("%w: decoding dump: %v", ErrUpstream, err)
	}
	return &dump, nil
}

type resolvedAgent struct {
	editor string
	os     string
}

func (p *APIPollProvider) fetchUserAgents(ctx context.Context, job *Job) (map[string]resolvedAgent, error) {
	agents := map[string]resolvedAgent{}
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/v1/users/current/user_agents?page=%d", job.baseURL(), page)
		resp, err := p.get(ctx, job, url)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching user agents: %v", ErrUpstream, err)
		}

		var pageData userAgentsPage
		err = json.NewDecoder(resp.Body).Decode(&pageData)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decoding user agents: %v", ErrUpstream, err)
		}

		for _, ua := range pageData.Data {
			editor, osName := ParseUserAgent(ua.Value)
			agents[ua.ID] = resolvedAgent{editor: editor, os: osName}
		}
		if page >= pageData.TotalPages || len(pageData.Data) == 0 {
			break
		}
	}
	return agents, nil
}

func (p *APIPollProvider) get(ctx context.Context, job *Job, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(job.APIKey, "")
	return p.client.Do(req)
}

func (p *APIPollProvider) setStatus(jobID string, status Status) {
	p.registry.Update(jobID, func(j *Job) { j.Status = status })
}

const defaultAPIPollBaseURL = "https://api.wakatime.com"

func (j *Job) baseURL() string {
	if j.InstanceURL != "" {
		return j.InstanceURL
	}
	return defaultAPIPollBaseURL
}
