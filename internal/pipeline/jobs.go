package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/notesmith/internal/stage"
)

// JobStatus represents the state of a stage job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job runs one or more stages, in order, against a document.
type Job struct {
	mu sync.Mutex

	ID     string
	DocID  string
	Stages []stage.Stage

	status    JobStatus
	phase     string
	results   []stage.Result
	errors    []string
	createdAt time.Time
	updatedAt time.Time
}

// NewJob creates a queued job with a fresh id.
func NewJob(docID string, stages ...stage.Stage) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		Stages:    append([]stage.Stage(nil), stages...),
		status:    StatusQueued,
		phase:     "queued",
		createdAt: now,
		updatedAt: now,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.phase = phase
	j.updatedAt = time.Now()
}

// Status returns the current status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.updatedAt = time.Now()
}

// AddResult records the outcome of a finished stage.
func (j *Job) AddResult(r stage.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	j.updatedAt = time.Now()
}

func (j *Job) touchedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string         `json:"job_id"`
	DocID     string         `json:"doc_id"`
	Stages    []stage.Stage  `json:"stages"`
	Status    JobStatus      `json:"status"`
	Phase     string         `json:"phase"`
	Results   []stage.Result `json:"results"`
	Errors    []string       `json:"errors"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		Stages:    append([]stage.Stage{}, j.Stages...),
		Status:    j.status,
		Phase:     j.phase,
		Results:   append([]stage.Result{}, j.results...),
		Errors:    append([]string{}, j.errors...),
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns snapshots of the jobs for docID, or all jobs when docID is
// empty, newest first.
func (s *JobStore) List(docID string) []JobSnapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if docID == "" || j.DocID == docID {
			jobs = append(jobs, j)
		}
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// Cleanup removes finished jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if job.Status().Done() && now.Sub(job.touchedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
