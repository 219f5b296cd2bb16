package analysis

import (
	"context"
	"errors"
	"sync"
	"time"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of an analysis job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("analysis: job not found")

// JobRecord captures the persisted state of an analysis request. The raw
// media content is never stored here; only identifiers and the outcome.
type JobRecord struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	SubjectRef  string    `json:"subject_ref"`
	MediaType   MediaType `json:"media_type"`
	Result      *Result   `json:"result,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	ExpiresAt   int64     `json:"-"`
}

// JobRecorder creates and reads job records.
type JobRecorder interface {
	PutQueued(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater advances job records through their lifecycle.
type JobUpdater interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, result *Result) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}

// MemoryJobStore keeps job records in process memory. Records past their
// TTL are dropped lazily on read.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobRecord
	now  func() time.Time
}

var _ JobRecorder = (*MemoryJobStore)(nil)
var _ JobUpdater = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*JobRecord),
		now:  time.Now,
	}
}

// PutQueued inserts a new queued job record.
func (s *MemoryJobStore) PutQueued(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("analysis: job cannot be nil")
	}
	if job.JobID == "" {
		return errors.New("analysis: jobID required")
	}

	now := s.now().UTC()
	job.Status = JobStatusQueued
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return errors.New("analysis: duplicate job id")
	}
	stored := *job
	s.jobs[job.JobID] = &stored
	return nil
}

// GetJob fetches a job by ID.
func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("analysis: jobID required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.ExpiresAt > 0 && s.now().UTC().Unix() > job.ExpiresAt {
		delete(s.jobs, jobID)
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

// MarkRunning transitions a job to the running state.
func (s *MemoryJobStore) MarkRunning(_ context.Context, jobID string) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusRunning
	})
}

// MarkCompleted records the final result.
func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, result *Result) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusCompleted
		job.Result = result
		job.ErrorReason = ""
	})
}

// MarkFailed records the failure reason.
func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, reason string) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusFailed
		job.Result = nil
		job.ErrorReason = reason
	})
}

func (s *MemoryJobStore) update(jobID string, apply func(*JobRecord)) error {
	if jobID == "" {
		return errors.New("analysis: jobID required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	apply(job)
	job.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
	return nil
}
