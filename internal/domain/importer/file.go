package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

// FileProvider imports an uploaded export synchronously: either a JSON
// day-array dump or a CSV with quoted-field support. No network I/O.
type FileProvider struct {
	dayProcessor
	logger *slog.Logger
}

// NewFileProvider creates the file-upload import provider.
func NewFileProvider(builder DaySink, logger *slog.Logger) *FileProvider {
	return &FileProvider{
		dayProcessor: dayProcessor{builder: builder, logger: logger},
		logger:       logger,
	}
}

// Validate checks that upload data is present and of a recognizable shape.
func (p *FileProvider) Validate(_ context.Context, job *Job) error {
	if len(job.FileData) == 0 {
		return ErrMissingFile
	}
	return nil
}

// Process parses the upload and groups heartbeats by UTC calendar day.
func (p *FileProvider) Process(_ context.Context, job *Job) (map[string][]heartbeat.Heartbeat, error) {
	data := bytes.TrimSpace(job.FileData)
	if len(data) == 0 {
		return nil, ErrMissingFile
	}

	var hbs []heartbeat.Heartbeat
	var err error
	if data[0] == '[' || data[0] == '{' {
		hbs, err = parseJSONExport(data)
	} else {
		hbs, err = parseCSVExport(data)
	}
	if err != nil {
		return nil, err
	}

	days := map[string][]heartbeat.Heartbeat{}
	for _, h := range hbs {
		h.UserID = job.UserID
		days[h.Day()] = append(days[h.Day()], h)
	}
	return days, nil
}

type jsonExportDay struct {
	Date       string `json:"date"`
	Heartbeats []struct {
		Time     float64 `json:"time"` // epoch seconds
		Entity   string  `json:"entity"`
		Project  string  `json:"project"`
		Branch   string  `json:"branch"`
		Language string  `json:"language"`
		Editor   string  `json:"editor"`
		OS       string  `json:"os"`
	} `json:"heartbeats"`
}

// parseJSONExport accepts either a day-array dump ([{date, heartbeats}])
// or a single dump object wrapping one ({"days": [...]}).
func parseJSONExport(data []byte) ([]heartbeat.Heartbeat, error) {
	var exportDays []jsonExportDay
	if data[0] == '{' {
		var wrapper struct {
			Days []jsonExportDay `json:"days"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parsing json export: %w", err)
		}
		exportDays = wrapper.Days
	} else if err := json.Unmarshal(data, &exportDays); err != nil {
		return nil, fmt.Errorf("parsing json export: %w", err)
	}

	var hbs []heartbeat.Heartbeat
	for _, day := range exportDays {
		for _, raw := range day.Heartbeats {
			hbs = append(hbs, heartbeat.Heartbeat{
				Timestamp: int64(raw.Time * 1000),
				Project:   raw.Project,
				Language:  raw.Language,
				Editor:    raw.Editor,
				OS:        raw.OS,
				File:      raw.Entity,
				Branch:    raw.Branch,
			})
		}
	}
	return hbs, nil
}

// parseCSVExport reads rows of
// timestamp,project,language,editor,os,file,branch with an optional header
// row. Timestamps may be epoch seconds or milliseconds.
func parseCSVExport(data []byte) ([]heartbeat.Heartbeat, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var hbs []heartbeat.Heartbeat
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing csv export: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}
		if len(row) < 7 {
			return nil, fmt.Errorf("csv line %d: expected 7 fields, got %d", line, len(row))
		}

		ts, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: invalid timestamp: %w", line, err)
		}
		// Heuristic: values below 1e12 are epoch seconds.
		tsMs := int64(ts)
		if ts < 1e12 {
			tsMs = int64(ts * 1000)
		}

		hbs = append(hbs, heartbeat.Heartbeat{
			Timestamp: tsMs,
			Project:   row[1],
			Language:  row[2],
			Editor:    row[3],
			OS:        row[4],
			File:      row[5],
			Branch:    row[6],
		})
	}
	return hbs, nil
}
