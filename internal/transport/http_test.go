package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/importer"
	"github.com/codepulse/codepulse/internal/domain/query"
	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/repository/mocks"
)

type stubProvider struct{}

func (stubProvider) Validate(context.Context, *importer.Job) error { return nil }

func (stubProvider) Process(context.Context, *importer.Job) (map[string][]heartbeat.Heartbeat, error) {
	return nil, nil
}

func (stubProvider) ProcessChunk(context.Context, *importer.Chunk) (int, error) { return 0, nil }

type serverFixture struct {
	router   *chi.Mux
	hbRepo   *mocks.HeartbeatRepository
	sumRepo  *mocks.SummaryRepository
	registry *importer.Registry
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hbRepo := &mocks.HeartbeatRepository{}
	sumRepo := &mocks.SummaryRepository{}
	userRepo := &mocks.UserRepository{}

	registry := importer.NewRegistry()
	providers := map[importer.Method]importer.Provider{
		importer.MethodFile:    stubProvider{},
		importer.MethodAPIPoll: stubProvider{},
	}
	// Orchestrator is never started here; jobs stay queued.
	orchestrator := importer.NewOrchestrator(registry, providers, importer.Options{}, logger)

	resolver := &testResolver{keys: map[string]string{"secret": "u1"}}
	router := NewServer(
		heartbeat.NewService(hbRepo, logger),
		query.NewService(hbRepo, sumRepo, userRepo, logger),
		orchestrator,
		registry,
		AuthMiddleware(resolver),
		logger,
	)
	return &serverFixture{router: router, hbRepo: hbRepo, sumRepo: sumRepo, registry: registry}
}

func (f *serverFixture) do(method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHeartbeats_SingleObject(t *testing.T) {
	f := newServerFixture(t)
	f.hbRepo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(hbs []heartbeat.Heartbeat) bool {
		return len(hbs) == 1 && hbs[0].UserID == "u1" && hbs[0].Timestamp == 1709251200500 && hbs[0].File == "main.go"
	})).Return(1, nil)

	body := []byte(`{"time": 1709251200.5, "entity": "main.go", "project": "pulse"}`)
	rec := f.do(http.MethodPost, "/api/heartbeats", "application/json", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp["accepted"])
}

func TestHeartbeats_ArrayWithUserAgent(t *testing.T) {
	f := newServerFixture(t)
	f.hbRepo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(hbs []heartbeat.Heartbeat) bool {
		return len(hbs) == 2 && hbs[0].Editor == "VS Code" && hbs[0].OS == "Linux"
	})).Return(2, nil)

	body := []byte(`[
		{"timestamp": 1709251200000, "entity": "a.go", "user_agent": "wakatime/v1.73.1 (linux-6.5-x86_64) go1.21 vscode/1.85.0 vscode-wakatime/24.0.0"},
		{"timestamp": 1709251230000, "entity": "a.go", "editor": "Vim", "os": "Linux"}
	]`)
	rec := f.do(http.MethodPost, "/api/heartbeats", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHeartbeats_BatchTooLarge(t *testing.T) {
	f := newServerFixture(t)

	batch := make([]map[string]any, heartbeat.MaxBatchSize+1)
	for i := range batch {
		batch[i] = map[string]any{"timestamp": 1709251200000 + i, "entity": "a.go"}
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/heartbeats", "application/json", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.hbRepo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestHeartbeats_MalformedJSON(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/heartbeats", "application/json", []byte(`{"time":`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeartbeats_RequiresAuth(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/heartbeats", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSummary_CustomRange(t *testing.T) {
	f := newServerFixture(t)
	f.sumRepo.On("GetByUserDay", mock.Anything, "u1", "2024-03-01").Return(&summary.Summary{
		UserID: "u1", Day: "2024-03-01", TotalSeconds: 160,
		Projects: map[string]int64{"pulse": 160},
	}, nil)

	rec := f.do(http.MethodGet, "/api/summary?range=custom-range&start=2024-03-01&end=2024-03-01", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp query.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Summaries, 1)
	require.Equal(t, int64(160), resp.Summaries[0].TotalSeconds)
}

func TestSummary_UnknownRange(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/api/summary?range=fortnight", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary_MalformedOffset(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/api/summary?range=today&offset=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_JSONRequestRequiresAPIKey(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/import", "application/json", []byte(`{"instance_type": "api-poll"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_UnknownMethod(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/import", "application/json", []byte(`{"instance_type": "carrier-pigeon", "api_key": "k"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_JSONRequestQueuesJob(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/import", "application/json", []byte(`{"instance_type": "api-poll", "api_key": "k", "instance_url": "https://waka.example.com"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	job, ok := f.registry.GetForUser("u1")
	require.True(t, ok)
	require.Equal(t, importer.MethodAPIPoll, job.Method)
	require.Equal(t, importer.StatusPending, job.Status)
}

func TestImport_MultipartUpload(t *testing.T) {
	f := newServerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("1709251200,pulse,Go,vscode,linux,main.go,main\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := f.do(http.MethodPost, "/api/import", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusAccepted, rec.Code)

	job, ok := f.registry.GetForUser("u1")
	require.True(t, ok)
	require.Equal(t, importer.MethodFile, job.Method)
	require.Equal(t, "export.csv", job.FileName)
}

func TestImportStatus_NoActiveJob(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/api/import/status", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportStatus_TerminalJobEvictedAfterRead(t *testing.T) {
	f := newServerFixture(t)
	f.registry.Create(&importer.Job{ID: "j1", UserID: "u1", Status: importer.StatusCompleted, Progress: 100})

	rec := f.do(http.MethodGet, "/api/import/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var job importer.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, importer.StatusCompleted, job.Status)

	rec = f.do(http.MethodGet, "/api/import/status", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportStatus_StreamClosesOnTerminal(t *testing.T) {
	f := newServerFixture(t)
	f.registry.Create(&importer.Job{ID: "j1", UserID: "u1", Status: importer.StatusCompleted, Progress: 100})

	req := httptest.NewRequest(http.MethodGet, "/api/import/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "data: "))
	require.Contains(t, rec.Body.String(), `"status":"completed"`)

	_, ok := f.registry.GetForUser("u1")
	require.False(t, ok, "terminal job evicted once streamed")
}
