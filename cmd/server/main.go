package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/codepulse/codepulse/internal/config"
	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/importer"
	"github.com/codepulse/codepulse/internal/domain/query"
	"github.com/codepulse/codepulse/internal/domain/summary"
	"github.com/codepulse/codepulse/internal/domain/user"
	"github.com/codepulse/codepulse/internal/sqlite"
	"github.com/codepulse/codepulse/internal/transport"
)

const rolloverInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logWriter := io.Writer(os.Stdout)
	if logPath := os.Getenv("CODEPULSE_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	heartbeatRepo := sqlite.NewHeartbeatRepository(db)
	summaryRepo := sqlite.NewSummaryRepository(db)
	userRepo := sqlite.NewUserRepository(db)

	heartbeatSvc := heartbeat.NewService(heartbeatRepo, logger)
	userSvc := user.NewService(userRepo, logger)
	querySvc := query.NewService(heartbeatRepo, summaryRepo, userRepo, logger)
	builder := summary.NewBuilder(heartbeatRepo, summaryRepo, userRepo, logger)
	rollover := summary.NewRollover(heartbeatRepo, summaryRepo,
		time.Duration(cfg.Retention.Days)*24*time.Hour, rolloverInterval, logger)

	registry := importer.NewRegistry()
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	providers := map[importer.Method]importer.Provider{
		importer.MethodAPIPoll:      importer.NewAPIPollProvider(httpClient, registry, builder, logger),
		importer.MethodAPIPaginated: importer.NewAPIPaginatedProvider(httpClient, registry, builder, logger),
		importer.MethodFile:         importer.NewFileProvider(builder, logger),
	}
	orchestrator := importer.NewOrchestrator(registry, providers, importer.Options{
		Workers:        cfg.Import.Workers,
		ChunkThreshold: cfg.Import.ChunkThreshold,
		ChunkDays:      cfg.Import.ChunkDays,
	}, logger)

	router := transport.NewServer(heartbeatSvc, querySvc, orchestrator, registry,
		transport.AuthMiddleware(userSvc), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		orchestrator.Start(ctx)
	}()
	go func() {
		defer workers.Done()
		if err := rollover.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("rollover worker stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer, cancel)
	workers.Wait()
}

func waitForShutdown(logger *slog.Logger, server *http.Server, cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

// logFileWriter appends to a single log file, truncating it back to a tail
// of keepLogSizeBytes whenever it grows past maxLogSizeBytes.
type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
