// Package jobs tracks asynchronous generation jobs in memory. Callers
// create a job, hand its ID back to the client immediately, and update
// the job from a background goroutine as the pipeline advances.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

const (
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// Event is a progress notification streamed to websocket subscribers
// while a job is still running.
type Event struct {
	JobID   string `json:"jobId"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// Job is the externally visible state of one generation run. Events is
// a buffered channel that is closed when the job reaches a terminal
// status; it is excluded from JSON responses.
type Job struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Events    chan Event `json:"-"`
}

// Tracker owns the job map. Finished jobs are retained for a bounded
// window so clients can poll for the outcome, then reaped by a
// background janitor.
type Tracker struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc

	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
	logger    interfaces.Logger
}

const (
	defaultRetention = 30 * time.Minute
	janitorInterval  = time.Minute
	eventBuffer      = 16
)

func NewTracker(retention time.Duration, logger interfaces.Logger) *Tracker {
	if retention <= 0 {
		retention = defaultRetention
	}
	t := &Tracker{
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		retention: retention,
		stop:      make(chan struct{}),
		logger:    logger,
	}
	go t.janitor()
	return t
}

// Create registers a new processing job and returns its ID.
func (t *Tracker) Create() string {
	id := uuid.New().String()
	job := &Job{
		ID:        id,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
		Events:    make(chan Event, eventBuffer),
	}
	t.mu.Lock()
	t.jobs[id] = job
	t.mu.Unlock()
	return id
}

// Get returns a snapshot of the job, or nil if the ID is unknown.
func (t *Tracker) Get(id string) *Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// Events returns the live event channel for a running job. The channel
// is closed once the job finishes.
func (t *Tracker) Events(id string) (chan Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Events, true
}

// EmitStage publishes a progress event without blocking. Slow or absent
// subscribers simply miss intermediate events.
func (t *Tracker) EmitStage(id, stage, message string) {
	t.mu.RLock()
	job, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok || job.Status != StatusProcessing {
		return
	}
	select {
	case job.Events <- Event{JobID: id, Stage: stage, Message: message}:
	default:
	}
}

// RegisterCancel associates a cancel function with a running job so
// that Cancel can abort the pipeline mid-flight.
func (t *Tracker) RegisterCancel(id string, cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancels[id] = cancel
	t.mu.Unlock()
}

// Cancel aborts a running job. It reports false when the job does not
// exist or has already finished.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[id]
	if ok {
		delete(t.cancels, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// MarkDone records a successful result and closes the event channel.
func (t *Tracker) MarkDone(id string, result any) {
	t.finish(id, func(job *Job) {
		job.Status = StatusDone
		job.Result = result
	})
}

// MarkError records a failure and closes the event channel.
func (t *Tracker) MarkError(id string, err error) {
	t.finish(id, func(job *Job) {
		job.Status = StatusError
		job.Error = err.Error()
	})
}

func (t *Tracker) finish(id string, apply func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok || job.Status != StatusProcessing {
		return
	}
	apply(job)
	now := time.Now()
	job.EndedAt = &now
	close(job.Events)
	delete(t.cancels, id)
}

func (t *Tracker) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.reap()
		}
	}
}

func (t *Tracker) reap() {
	cutoff := time.Now().Add(-t.retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, job := range t.jobs {
		if job.EndedAt != nil && job.EndedAt.Before(cutoff) {
			delete(t.jobs, id)
			if t.logger != nil {
				t.logger.Debug("reaped finished job", interfaces.Field{Key: "job_id", Value: id})
			}
		}
	}
}

// Close stops the janitor and cancels any jobs still running.
func (t *Tracker) Close() error {
	t.stopOnce.Do(func() { close(t.stop) })
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.cancels))
	for id, cancel := range t.cancels {
		cancels = append(cancels, cancel)
		delete(t.cancels, id)
	}
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
