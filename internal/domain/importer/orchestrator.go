package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

const (
	defaultWorkers        = 10
	defaultChunkThreshold = 10 // day count above which a job fans out
	defaultChunkDays      = 5
	workerIdleSleep       = time.Second
	workerErrorSleep      = 2 * time.Second
)

// Options tunes the orchestrator pool.
type Options struct {
	Workers        int
	ChunkThreshold int
	ChunkDays      int
}

// Orchestrator runs import jobs on a fixed pool of long-lived workers
// consuming a FIFO queue. Large jobs are decomposed into date-keyed chunks
// so independent days backfill in parallel; progress is reported as
// processed days over total days.
type Orchestrator struct {
	registry  *Registry
	providers map[Method]Provider
	logger    *slog.Logger

	workers        int
	chunkThreshold int
	chunkDays      int
	idleSleep      time.Duration
	errorSleep     time.Duration

	mu    sync.Mutex
	queue []task
}

// task is one queue item: a full job, or one chunk of an already-fetched
// job's dataset.
type task struct {
	job   *Job
	chunk *Chunk
}

// NewOrchestrator creates the import orchestrator.
func NewOrchestrator(registry *Registry, providers map[Method]Provider, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = defaultChunkThreshold
	}
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = defaultChunkDays
	}
	return &Orchestrator{
		registry:       registry,
		providers:      providers,
		logger:         logger,
		workers:        opts.Workers,
		chunkThreshold: opts.ChunkThreshold,
		chunkDays:      opts.ChunkDays,
		idleSleep:      workerIdleSleep,
		errorSleep:     workerErrorSleep,
	}
}

// Enqueue registers a new import job and queues it for the pool. Any job
// the user already owns is evicted first; its in-flight writes are simply
// abandoned since day upserts are idempotent.
func (o *Orchestrator) Enqueue(job *Job) error {
	if _, ok := o.providers[job.Method]; !ok {
		return ErrUnknownMethod
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = StatusPending
	job.CreatedAt = time.Now().UTC()

	o.registry.Create(job)
	o.push(task{job: job})
	o.logger.Info("import job queued", "job", job.ID, "user", job.UserID, "method", job.Method)
	return nil
}

// Start launches the worker pool and blocks until the context is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			o.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

// worker pulls tasks until shutdown. A task failure marks the job Failed
// and the worker sleeps briefly and resumes; workers never terminate on
// job errors.
func (o *Orchestrator) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		t, ok := o.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.idleSleep):
			}
			continue
		}

		if err := o.runTask(ctx, t); err != nil {
			o.logger.Error("import task failed", "worker", id, "job", t.jobID(), "error", err)
			o.fail(t.jobID(), err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.errorSleep):
			}
		}
	}
}

func (t task) jobID() string {
	if t.chunk != nil {
		return t.chunk.JobID
	}
	return t.job.ID
}

func (o *Orchestrator) runTask(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import task panic: %v", r)
		}
	}()

	if t.chunk != nil {
		return o.runChunk(ctx, t.chunk)
	}
	return o.runJob(ctx, t.job)
}

func (o *Orchestrator) runJob(ctx context.Context, job *Job) error {
	provider := o.providers[job.Method]

	if err := provider.Validate(ctx, job); err != nil {
		return fmt.Errorf("validating job: %w", err)
	}

	o.registry.Update(job.ID, func(j *Job) { j.Status = StatusFetchingMetadata })

	days, err := provider.Process(ctx, job)
	if err != nil {
		return fmt.Errorf("fetching import data: %w", err)
	}

	total := len(days)
	o.registry.Update(job.ID, func(j *Job) {
		j.Status = StatusProcessingHeartbeats
		j.Total = total
		j.Current = 0
	})
	if total == 0 {
		o.complete(job.ID)
		return nil
	}

	if total > o.chunkThreshold {
		for _, chunk := range o.split(job, days) {
			o.push(task{job: job, chunk: chunk})
		}
		return nil
	}

	chunk := &Chunk{JobID: job.ID, UserID: job.UserID, Days: days}
	return o.runChunk(ctx, chunk)
}

func (o *Orchestrator) runChunk(ctx context.Context, chunk *Chunk) error {
	job, ok := o.registry.Get(chunk.JobID)
	if !ok || job.Status.Terminal() {
		// Superseded or already failed; drop the chunk.
		return nil
	}

	provider := o.providers[job.Method]
	processed, err := provider.ProcessChunk(ctx, chunk)
	if err != nil {
		return fmt.Errorf("processing chunk: %w", err)
	}

	var imported int64
	for _, hbs := range chunk.Days {
		imported += int64(len(hbs))
	}

	done := false
	o.registry.Update(chunk.JobID, func(j *Job) {
		j.Current += processed
		j.ImportedCount += imported
		if j.Total > 0 {
			j.Progress = j.Current * 100 / j.Total
		}
		if j.Current >= j.Total && !j.Status.Terminal() {
			j.Status = StatusCompleted
			j.Progress = 100
			done = true
		}
	})

	if done {
		if final, ok := o.registry.Get(chunk.JobID); ok {
			o.logger.Info("import job completed",
				"job", final.ID,
				"user", final.UserID,
				"days", final.Total,
				"heartbeats", humanize.Comma(final.ImportedCount))
		}
	}
	return nil
}

// split partitions the date-grouped dataset into chunks of up to chunkDays
// consecutive dates each.
func (o *Orchestrator) split(job *Job, days map[string][]heartbeat.Heartbeat) []*Chunk {
	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var chunks []*Chunk
	for start := 0; start < len(dates); start += o.chunkDays {
		end := start + o.chunkDays
		if end > len(dates) {
			end = len(dates)
		}
		part := make(map[string][]heartbeat.Heartbeat, end-start)
		for _, d := range dates[start:end] {
			part[d] = days[d]
		}
		chunks = append(chunks, &Chunk{JobID: job.ID, UserID: job.UserID, Days: part})
	}
	return chunks
}

func (o *Orchestrator) push(t task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, t)
}

func (o *Orchestrator) pop() (task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return task{}, false
	}
	t := o.queue[0]
	o.queue = o.queue[1:]
	return t, true
}

func (o *Orchestrator) fail(jobID string, err error) {
	o.registry.Update(jobID, func(j *Job) {
		if !j.Status.Terminal() {
			j.Status = StatusFailed
			j.Error = err.Error()
		}
	})
}

func (o *Orchestrator) complete(jobID string) {
	o.registry.Update(jobID, func(j *Job) {
		if !j.Status.Terminal() {
			j.Status = StatusCompleted
			j.Progress = 100
		}
	})
}
