package handlers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/cornea/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// maxFinishedJobs bounds how many terminal jobs the manager remembers.
const maxFinishedJobs = 50

// RetrainJob represents an async retrain.
type RetrainJob struct {
	EventBroadcaster

	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Total       int               `json:"total_images"`
	Processed   int               `json:"processed_images"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *RetrainJobResult `json:"result,omitempty"`
}

// RetrainJobResult summarizes a finished retrain.
type RetrainJobResult struct {
	Path        string  `json:"path"`
	Samples     int     `json:"samples"`
	Labels      []int   `json:"labels"`
	Images      int     `json:"images"`
	Undecodable int     `json:"undecodable"`
	Faceless    int     `json:"faceless"`
	MultiFace   int     `json:"multi_face"`
	DurationMs  float64 `json:"duration_ms"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *RetrainJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels the retrain job.
func (j *RetrainJob) Cancel() {
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

// setProgress records preparation progress.
func (j *RetrainJob) setProgress(done, total int) {
	j.mu.Lock()
	j.Processed = done
	j.Total = total
	if total > 0 {
		j.Progress = done * 100 / total
	}
	j.mu.Unlock()
}

// finish moves the job to a terminal state unless it was cancelled.
func (j *RetrainJob) finish(status JobStatus, message string, result *RetrainJobResult) bool {
	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobStatusCancelled {
		return false
	}
	j.Status = status
	j.Error = message
	j.Result = result
	j.CompletedAt = &now
	if status == JobStatusCompleted {
		j.Progress = 100
	}
	return true
}

// snapshot returns a copy safe to encode while the job runs.
func (j *RetrainJob) snapshot() RetrainJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return RetrainJob{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		Processed:   j.Processed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = slices.Delete(b.listeners, i, i+1)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async retrain jobs.
type JobManager struct {
	jobs  map[string]*RetrainJob
	order []string
	mu    sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*RetrainJob),
	}
}

// CreateJob creates a new pending retrain job.
func (m *JobManager) CreateJob(id string) *RetrainJob {
	job := &RetrainJob{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.order = append(m.order, id)
	m.pruneLocked()
	m.mu.Unlock()

	return job
}

// pruneLocked forgets the oldest terminal jobs beyond maxFinishedJobs.
func (m *JobManager) pruneLocked() {
	finished := 0
	for _, id := range m.order {
		if isJobTerminal(m.jobs[id].GetStatus()) {
			finished++
		}
	}
	for i := 0; finished > maxFinishedJobs && i < len(m.order); {
		id := m.order[i]
		if isJobTerminal(m.jobs[id].GetStatus()) {
			delete(m.jobs, id)
			m.order = slices.Delete(m.order, i, i+1)
			finished--
			continue
		}
		i++
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *RetrainJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, oldest first.
func (m *JobManager) ListJobs() []*RetrainJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*RetrainJob, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.jobs[id])
	}
	return jobs
}
