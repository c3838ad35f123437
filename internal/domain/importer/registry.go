package importer

import (
	"sync"
)

// Registry is the process-wide source of truth for import-job state. Each
// job is mutated by the single worker owning it, but creation, deletion,
// and snapshot reads happen concurrently from many goroutines, so every
// access goes through the registry lock.
//
// At most one job exists per user: registering a new one evicts the prior.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	byUser map[string]string
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:   map[string]*Job{},
		byUser: map[string]string{},
	}
}

// Create registers a job, evicting any job the user already owns.
func (r *Registry) Create(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byUser[job.UserID]; ok {
		delete(r.jobs, prev)
	}
	r.jobs[job.ID] = job
	r.byUser[job.UserID] = job.ID
}

// Get returns a snapshot of the job, if registered.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// GetForUser returns a snapshot of the user's current job, if any.
func (r *Registry) GetForUser(userID string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUser[userID]
	if !ok {
		return Job{}, false
	}
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Update applies fn to the job under the registry lock. A no-op if the job
// was evicted meanwhile (a superseded worker's writes are abandoned).
func (r *Registry) Update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// Delete removes a job, typically after a consumer observed a terminal
// state.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		if r.byUser[job.UserID] == id {
			delete(r.byUser, job.UserID)
		}
		delete(r.jobs, id)
	}
}
