package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/importer"
	"github.com/codepulse/codepulse/internal/domain/query"
)

const (
	maxUploadBytes   = 64 << 20
	statusStreamTick = 200 * time.Millisecond
)

// Server wires HTTP handlers around the domain services.
type Server struct {
	heartbeats *heartbeat.Service
	queries    *query.Service
	imports    *importer.Orchestrator
	registry   *importer.Registry
	logger     *slog.Logger
}

// NewServer creates the HTTP router with middleware.
func NewServer(hbs *heartbeat.Service, queries *query.Service, imports *importer.Orchestrator, registry *importer.Registry, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	srv := &Server{
		heartbeats: hbs,
		queries:    queries,
		imports:    imports,
		registry:   registry,
		logger:     logger,
	}

	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Post("/api/heartbeats", srv.handleHeartbeats)
		r.Get("/api/summary", srv.handleSummary)
		r.Post("/api/import", srv.handleImport)
		r.Get("/api/import/status", srv.handleImportStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// wireHeartbeat is the ingestion payload. Timestamps arrive either as
// epoch-second floats (time) or epoch milliseconds (timestamp); editor and
// OS may come explicit or folded into a plugin user agent.
type wireHeartbeat struct {
	Time      float64 `json:"time"`
	Timestamp int64   `json:"timestamp"`
	Entity    string  `json:"entity"`
	Project   string  `json:"project"`
	Language  string  `json:"language"`
	Editor    string  `json:"editor"`
	OS        string  `json:"os"`
	Branch    string  `json:"branch"`
	UserAgent string  `json:"user_agent"`
}

func (wh wireHeartbeat) toDomain() heartbeat.Heartbeat {
	ts := wh.Timestamp
	if ts == 0 {
		ts = int64(wh.Time * 1000)
	}
	editor, osName := wh.Editor, wh.OS
	if (editor == "" || osName == "") && wh.UserAgent != "" {
		uaEditor, uaOS := importer.ParseUserAgent(wh.UserAgent)
		if editor == "" {
			editor = uaEditor
		}
		if osName == "" {
			osName = uaOS
		}
	}
	return heartbeat.Heartbeat{
		Timestamp: ts,
		Project:   wh.Project,
		Language:  wh.Language,
		Editor:    editor,
		OS:        osName,
		File:      wh.Entity,
		Branch:    wh.Branch,
	}
}

// handleHeartbeats accepts one heartbeat object or an array of them.
func (s *Server) handleHeartbeats(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	var wire []wireHeartbeat
	trimmed := strings.TrimSpace(string(body))
	switch {
	case strings.HasPrefix(trimmed, "["):
		err = json.Unmarshal(body, &wire)
	default:
		var one wireHeartbeat
		err = json.Unmarshal(body, &one)
		wire = []wireHeartbeat{one}
	}
	if err != nil {
		http.Error(w, "malformed heartbeat payload", http.StatusBadRequest)
		return
	}

	hbs := make([]heartbeat.Heartbeat, 0, len(wire))
	for _, wh := range wire {
		hbs = append(hbs, wh.toDomain())
	}

	accepted, err := s.heartbeats.Ingest(r.Context(), userID, hbs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"received": len(hbs),
		"accepted": accepted,
	})
}

// handleSummary serves the time-range query endpoint.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()

	rangeName := q.Get("range")
	if rangeName == "" {
		rangeName = "today"
	}
	tr, err := query.ParseRange(rangeName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	req := query.Request{Range: tr, Project: q.Get("project")}
	if offset := q.Get("offset"); offset != "" {
		req.OffsetSeconds, err = strconv.Atoi(offset)
		if err != nil {
			http.Error(w, "malformed offset", http.StatusBadRequest)
			return
		}
	}
	if tr == query.RangeCustom {
		req.Start, req.End, err = parseCustomBounds(q.Get("start"), q.Get("end"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp, err := s.queries.Summaries(r.Context(), userID, req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseCustomBounds(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("custom range requires start and end")
	}
	s, err := time.Parse(heartbeat.DayFormat, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed start date")
	}
	e, err := time.Parse(heartbeat.DayFormat, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed end date")
	}
	// End is inclusive on the wire; the query window is half-open.
	return s, e.AddDate(0, 0, 1), nil
}

type importRequest struct {
	InstanceType string `json:"instance_type"`
	Method       string `json:"method"`
	APIKey       string `json:"api_key"`
	InstanceURL  string `json:"instance_url"`
}

// handleImport accepts either a JSON provider request or a multipart file
// upload, and queues the job.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var job *importer.Job
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		j, err := s.fileImportJob(r, userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		job = j
	} else {
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed import request", http.StatusBadRequest)
			return
		}
		method := req.Method
		if method == "" {
			method = req.InstanceType
		}
		if method != string(importer.MethodFile) && req.APIKey == "" {
			s.writeDomainError(w, importer.ErrMissingAPIKey)
			return
		}
		job = &importer.Job{
			UserID:      userID,
			Method:      importer.Method(method),
			APIKey:      req.APIKey,
			InstanceURL: req.InstanceURL,
		}
	}

	if err := s.imports.Enqueue(job); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) fileImportJob(r *http.Request, userID string) (*importer.Job, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("malformed multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file part")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("reading upload")
	}
	return &importer.Job{
		UserID:   userID,
		Method:   importer.MethodFile,
		FileName: header.Filename,
		FileData: data,
	}, nil
}

// handleImportStatus serves the user's active job. A plain GET returns one
// snapshot; with Accept: text/event-stream the job is pushed on a fixed
// tick until it reaches a terminal state. Either way, observing a terminal
// state evicts the job.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamImportStatus(w, r, userID)
		return
	}

	job, ok := s.registry.GetForUser(userID)
	if !ok {
		http.Error(w, "no active import", http.StatusNotFound)
		return
	}
	if job.Status.Terminal() {
		s.registry.Delete(job.ID)
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) streamImportStatus(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(statusStreamTick)
	defer ticker.Stop()

	for {
		job, ok := s.registry.GetForUser(userID)
		if !ok {
			return
		}

		payload, err := json.Marshal(job)
		if err != nil {
			s.logger.Error("marshaling job status", "job", job.ID, "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()

		if job.Status.Terminal() {
			s.registry.Delete(job.ID)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// writeDomainError maps domain errors to status codes. Internal failures
// get a generic body; detail stays in the logs.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, heartbeat.ErrBatchTooLarge),
		errors.Is(err, heartbeat.ErrInvalidInput),
		errors.Is(err, query.ErrUnknownRange),
		errors.Is(err, query.ErrCustomRangeBounds),
		errors.Is(err, importer.ErrUnknownMethod),
		errors.Is(err, importer.ErrMissingAPIKey),
		errors.Is(err, importer.ErrMissingFile):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
