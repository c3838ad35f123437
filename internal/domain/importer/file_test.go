package importer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/importer"
	"github.com/codepulse/codepulse/internal/domain/summary"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sinkCall struct {
	day  string
	mode summary.DayMode
}

// fakeSink records builder invocations and can reject a single day.
type fakeSink struct {
	mu      sync.Mutex
	calls   []sinkCall
	failDay string
}

func (s *fakeSink) Process(_ context.Context, _, day string, _ []heartbeat.Heartbeat, mode summary.DayMode) (*summary.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{day: day, mode: mode})
	if day == s.failDay {
		return nil, errors.New("day rejected")
	}
	return &summary.Summary{Day: day}, nil
}

func (s *fakeSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

func TestFileProvider_ValidateRequiresData(t *testing.T) {
	p := importer.NewFileProvider(&fakeSink{}, testLogger())

	err := p.Validate(context.Background(), &importer.Job{})
	require.ErrorIs(t, err, importer.ErrMissingFile)

	err = p.Validate(context.Background(), &importer.Job{FileData: []byte("x")})
	require.NoError(t, err)
}

func TestFileProvider_ParsesJSONDayArray(t *testing.T) {
	data := []byte(`[
		{"date": "2024-03-01", "heartbeats": [
			{"time": 1709251200.5, "entity": "main.go", "project": "pulse", "language": "Go", "editor": "vscode", "os": "linux", "branch": "main"},
			{"time": 1709251230, "entity": "main.go", "project": "pulse", "language": "Go", "editor": "vscode", "os": "linux", "branch": "main"}
		]},
		{"date": "2024-03-02", "heartbeats": [
			{"time": 1709337600, "entity": "api.go", "project": "pulse", "language": "Go", "editor": "vim", "os": "linux", "branch": "main"}
		]}
	]`)

	p := importer.NewFileProvider(&fakeSink{}, testLogger())
	days, err := p.Process(context.Background(), &importer.Job{UserID: "u1", FileData: data})
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Len(t, days["2024-03-01"], 2)
	require.Len(t, days["2024-03-02"], 1)

	first := days["2024-03-01"][0]
	require.Equal(t, "u1", first.UserID)
	require.Equal(t, int64(1709251200500), first.Timestamp)
	require.Equal(t, "pulse", first.Project)
	require.Equal(t, "main.go", first.File)
}

func TestFileProvider_ParsesJSONDumpObject(t *testing.T) {
	data := []byte(`{"days": [{"date": "2024-03-01", "heartbeats": [
		{"time": 1709251200, "entity": "main.go", "project": "pulse", "language": "Go", "editor": "vscode", "os": "linux", "branch": "main"}
	]}]}`)

	p := importer.NewFileProvider(&fakeSink{}, testLogger())
	days, err := p.Process(context.Background(), &importer.Job{UserID: "u1", FileData: data})
	require.NoError(t, err)
	require.Len(t, days["2024-03-01"], 1)
}

func TestFileProvider_ParsesCSVWithHeaderAndQuotedFields(t *testing.T) {
	data := []byte("timestamp,project,language,editor,os,file,branch\n" +
		"1709251200,pulse,Go,vscode,linux,main.go,main\n" +
		"1709251230000,\"my, project\",Go,vim,linux,\"pkg/a b.go\",feat/x\n")

	p := importer.NewFileProvider(&fakeSink{}, testLogger())
	days, err := p.Process(context.Background(), &importer.Job{UserID: "u1", FileData: data})
	require.NoError(t, err)

	hbs := days["2024-03-01"]
	require.Len(t, hbs, 2)
	// Second row is already epoch milliseconds.
	require.Equal(t, int64(1709251200000), hbs[0].Timestamp)
	require.Equal(t, int64(1709251230000), hbs[1].Timestamp)
	require.Equal(t, "my, project", hbs[1].Project)
	require.Equal(t, "pkg/a b.go", hbs[1].File)
}

func TestFileProvider_RejectsMalformedCSV(t *testing.T) {
	p := importer.NewFileProvider(&fakeSink{}, testLogger())

	_, err := p.Process(context.Background(), &importer.Job{UserID: "u1", FileData: []byte("1709251200,pulse,Go\n")})
	require.Error(t, err)

	_, err = p.Process(context.Background(), &importer.Job{UserID: "u1", FileData: []byte("nonsense,pulse,Go,vscode,linux,main.go,main\n")})
	require.Error(t, err)
}

func TestProcessChunk_ModeAndFailureIsolation(t *testing.T) {
	sink := &fakeSink{failDay: "2024-03-02"}
	p := importer.NewFileProvider(sink, testLogger())

	today := time.Now().UTC().Format(heartbeat.DayFormat)
	chunk := &importer.Chunk{
		JobID:  "j1",
		UserID: "u1",
		Days: map[string][]heartbeat.Heartbeat{
			"2024-03-01": {{UserID: "u1", Timestamp: 1709251200000, File: "a.go"}},
			"2024-03-02": {{UserID: "u1", Timestamp: 1709337600000, File: "b.go"}},
			today:        {{UserID: "u1", Timestamp: time.Now().UnixMilli(), File: "c.go"}},
		},
	}

	processed, err := p.ProcessChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, 3, processed, "a rejected day still counts as processed")

	calls := sink.snapshot()
	require.Len(t, calls, 3)
	for _, c := range calls {
		if c.day == today {
			require.Equal(t, summary.LiveDay, c.mode)
		} else {
			require.Equal(t, summary.ClosedDay, c.mode)
		}
	}
}
