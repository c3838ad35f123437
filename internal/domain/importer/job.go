package importer

import (
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

// Method selects which provider handles an import job.
type Method string

const (
	MethodAPIPoll      Method = "api-poll"
	MethodAPIPaginated Method = "api-paginated"
	MethodFile         Method = "file"
)

// Status is the linear import-job state machine. Failed is reachable from
// any non-terminal state; providers skip states that don't apply to them.
type Status string

const (
	StatusPending                 Status = "pending"
	StatusFetchingMetadata        Status = "fetching_metadata"
	StatusCreatingDataDumpRequest Status = "creating_data_dump_request"
	StatusWaitingForDataDump      Status = "waiting_for_data_dump"
	StatusDownloading             Status = "downloading"
	StatusProcessing              Status = "processing"
	StatusProcessingHeartbeats    Status = "processing_heartbeats"
	StatusCompleted               Status = "completed"
	StatusFailed                  Status = "failed"
)

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the ephemeral orchestration state of one import. It lives only in
// the registry for the process lifetime; the worker owning it is the sole
// mutator while readers poll snapshots through the registry.
type Job struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Method        Method    `json:"method"`
	FileName      string    `json:"file_name,omitempty"`
	Status        Status    `json:"status"`
	Progress      int       `json:"progress"` // 0-100
	Current       int       `json:"current"`
	Total         int       `json:"total"`
	ImportedCount int64     `json:"imported_count"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// Provider working set, never serialized to status consumers.
	APIKey      string `json:"-"`
	InstanceURL string `json:"-"`
	FileData    []byte `json:"-"`
}

// Chunk is a date-keyed partition of a job's dataset, assigned to exactly
// one worker. It carries enough context to report back into the parent job.
type Chunk struct {
	JobID  string
	UserID string
	Days   map[string][]heartbeat.Heartbeat
}
