package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/aaronfeingold/invoice-track/internal/domain"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrJobExists = errors.New("job already exists")
)

// Change describes one committed registry mutation, delivered to listeners.
type Change struct {
	JobID      string
	PrevStatus domain.JobStatus
	Status     domain.JobStatus
	Progress   int
}

// BecameTerminal reports whether this change moved the job from a
// non-terminal status into completed or failed.
func (c Change) BecameTerminal() bool {
	return !c.PrevStatus.Terminal() && c.Status.Terminal()
}

// Registry holds the canonical state of every job known in the current
// session, keyed by backend-assigned job ID. It is in-memory only and
// safe for concurrent use. Writers are the event reconciler and the
// batch orchestrator's seeding step; everything else reads snapshots.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.JobRecord
	order []string

	listenerMu sync.Mutex
	listeners  []func(Change)
}

func New() *Registry {
	return &Registry{
		jobs: make(map[string]*domain.JobRecord),
	}
}

// OnChange registers a listener invoked after every committed mutation.
// Listeners must not mutate the registry.
func (r *Registry) OnChange(listener func(Change)) {
	if listener == nil {
		return
	}
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Registry) notify(change Change) {
	r.listenerMu.Lock()
	listeners := make([]func(Change), len(r.listeners))
	copy(listeners, r.listeners)
	r.listenerMu.Unlock()

	for _, listener := range listeners {
		listener(change)
	}
}

// Create inserts a pending record. Job IDs are backend-generated and
// assumed unique; a duplicate is a logic error and returns ErrJobExists
// without touching the existing record.
func (r *Registry) Create(jobID, displayName string) error {
	r.mu.Lock()
	if _, exists := r.jobs[jobID]; exists {
		r.mu.Unlock()
		return ErrJobExists
	}

	now := time.Now().UTC()
	r.jobs[jobID] = &domain.JobRecord{
		ID:          jobID,
		DisplayName: displayName,
		Status:      domain.JobStatusPending,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.order = append(r.order, jobID)
	r.mu.Unlock()

	r.notify(Change{
		JobID:      jobID,
		PrevStatus: domain.JobStatusPending,
		Status:     domain.JobStatusPending,
		Progress:   0,
	})
	return nil
}

func (r *Registry) Get(jobID string) (domain.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.JobRecord{}, ErrNotFound
	}
	return cloneRecord(job), nil
}

// Snapshot returns every record in insertion order so list views do not
// visually reorder while jobs progress.
func (r *Registry) Snapshot() []domain.JobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.JobRecord, 0, len(r.order))
	for _, jobID := range r.order {
		if job, ok := r.jobs[jobID]; ok {
			records = append(records, cloneRecord(job))
		}
	}
	return records
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// ApplyEvent merges one inbound event into the job it references.
// Merge rules, in order:
//   - unknown job: ErrNotFound, no mutation;
//   - the raw event is appended to Updates unconditionally (audit trail);
//   - a terminal record accepts no further changes to status, progress,
//     stage, result or error;
//   - stage_start/progress move pending->processing, complete and error
//     are terminal transitions;
//   - progress is clamped to [0,100], forced to 100 on completion, and
//     never regresses once the job has left pending;
//   - result and error are write-once.
func (r *Registry) ApplyEvent(event domain.JobEvent) (Change, error) {
	r.mu.Lock()
	job, ok := r.jobs[event.JobID]
	if !ok {
		r.mu.Unlock()
		return Change{}, ErrNotFound
	}

	prev := job.Status
	job.Updates = append(job.Updates, event)

	if prev.Terminal() {
		// Late or duplicate delivery. The audit append above still counts
		// as a committed mutation.
		change := Change{JobID: job.ID, PrevStatus: prev, Status: prev, Progress: job.Progress}
		r.mu.Unlock()
		r.notify(change)
		return change, nil
	}

	switch event.Kind {
	case domain.EventKindComplete:
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		if job.Result == nil && len(event.Result) > 0 {
			job.Result = append([]byte(nil), event.Result...)
		}
	case domain.EventKindError:
		job.Status = domain.JobStatusFailed
		if job.Error == "" && event.Error != "" {
			job.Error = event.Error
		}
	case domain.EventKindStageStart, domain.EventKindProgress:
		job.Status = domain.JobStatusProcessing
		if event.Stage != "" {
			job.Stage = event.Stage
		}
		if event.Progress != nil {
			candidate := clampProgress(*event.Progress)
			if candidate > job.Progress || prev == domain.JobStatusPending {
				job.Progress = candidate
			}
		}
	}
	job.UpdatedAt = time.Now().UTC()

	change := Change{
		JobID:      job.ID,
		PrevStatus: prev,
		Status:     job.Status,
		Progress:   job.Progress,
	}
	r.mu.Unlock()

	r.notify(change)
	return change, nil
}

// Clear drops all local tracking state. The backend's record of the
// jobs is unaffected.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.jobs = make(map[string]*domain.JobRecord)
	r.order = nil
	r.mu.Unlock()
}

func clampProgress(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func cloneRecord(job *domain.JobRecord) domain.JobRecord {
	clone := *job
	if job.Result != nil {
		clone.Result = append([]byte(nil), job.Result...)
	}
	if job.Updates != nil {
		clone.Updates = append([]domain.JobEvent(nil), job.Updates...)
	}
	return clone
}
