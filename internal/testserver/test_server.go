package testserver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/importer"
	"github.com/codepulse/codepulse/internal/domain/query"
	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/domain/user"
	"github.com/codepulse/codepulse/internal/sqlite"
	"github.com/codepulse/codepulse/internal/transport"
)

// TestServer is a fully wired HTTP server over an in-memory database, for
// end-to-end tests.
type TestServer struct {
	Server       *httptest.Server
	DB           *sqlite.DB
	Registry     *importer.Registry
	Builder      *summary.Builder
	Orchestrator *importer.Orchestrator
	APIKey       string
	UserID       string
}

func New(t *testing.T, apiKey, userID string) *TestServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	heartbeatRepo := sqlite.NewHeartbeatRepository(db)
	summaryRepo := sqlite.NewSummaryRepository(db)
	userRepo := sqlite.NewUserRepository(db)

	heartbeatSvc := heartbeat.NewService(heartbeatRepo, logger)
	userSvc := user.NewService(userRepo, logger)
	querySvc := query.NewService(heartbeatRepo, summaryRepo, userRepo, logger)
	builder := summary.NewBuilder(heartbeatRepo, summaryRepo, userRepo, logger)

	registry := importer.NewRegistry()
	providers := map[importer.Method]importer.Provider{
		importer.MethodFile: importer.NewFileProvider(builder, logger),
	}
	orchestrator := importer.NewOrchestrator(registry, providers, importer.Options{Workers: 2}, logger)

	server := httptest.NewServer(transport.NewServer(
		heartbeatSvc, querySvc, orchestrator, registry,
		transport.AuthMiddleware(userSvc), logger))

	ts := &TestServer{
		Server:       server,
		DB:           db,
		Registry:     registry,
		Builder:      builder,
		Orchestrator: orchestrator,
		APIKey:       apiKey,
		UserID:       userID,
	}

	require.NoError(t, ts.AddUser(apiKey, userID))

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// AddUser registers an API key for the given user id.
func (ts *TestServer) AddUser(apiKey, userID string) error {
	_, err := ts.DB.Exec(
		`INSERT INTO users (id, api_key_hash, keystroke_timeout_minutes, created_at) VALUES (?, ?, 0, ?)`,
		userID, user.HashAPIKey(apiKey), time.Now(),
	)
	return err
}
