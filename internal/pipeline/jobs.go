package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/apindex/internal/segment"
)

// JobStatus represents the state of a volume indexing job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusLoading   JobStatus = "loading"
	StatusIndexing  JobStatus = "indexing"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// Job tracks the state of a single volume.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Manifest string `json:"manifest"`
	Druid    string `json:"druid"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress is what the engine reported for the volume.
type Progress struct {
	Pages          int      `json:"pages"`
	Sections       int      `json:"sections"`
	DiscardedPages int      `json:"discarded_pages"`
	Warnings       int      `json:"warnings"`
	Errors         []string `json:"errors"`
}

// NewJob returns a queued job for the manifest at uri.
func NewJob(uri string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Manifest:  uri,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
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

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// SetDruid records the volume identifier once the manifest is loaded.
func (j *Job) SetDruid(druid string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Druid = druid
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetStats records the engine counters for the volume.
func (j *Job) SetStats(st segment.Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Pages = st.Pages
	j.Progress.Sections = st.Sections
	j.Progress.DiscardedPages = st.DiscardedPages
	j.Progress.Warnings = st.Warnings
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Manifest  string    `json:"manifest"`
	Druid     string    `json:"druid,omitempty"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		Manifest:  j.Manifest,
		Druid:     j.Druid,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Done reports whether the job reached a final status.
func (s JobSnapshot) Done() bool {
	switch s.Status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}
