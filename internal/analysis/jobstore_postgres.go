package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGJobStore persists job records to PostgreSQL for deployments where the
// API and workers run as separate processes.
type PGJobStore struct {
	db *pgxpool.Pool
}

// NewPGJobStore builds a Postgres-backed job store.
func NewPGJobStore(db *pgxpool.Pool) *PGJobStore {
	if db == nil {
		panic("analysis: pgx pool cannot be nil")
	}
	return &PGJobStore{db: db}
}

var _ JobRecorder = (*PGJobStore)(nil)
var _ JobUpdater = (*PGJobStore)(nil)

// PutQueued inserts a queued job record.
func (s *PGJobStore) PutQueued(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("analysis: job cannot be nil")
	}
	if job.JobID == "" {
		return errors.New("analysis: jobID required")
	}

	now := time.Now().UTC()
	job.Status = JobStatusQueued
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	expiresAt := time.Unix(job.ExpiresAt, 0).UTC()
	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO analysis_jobs (
			job_id, status, subject_ref, media_type,
			result, error_reason, created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,NULL,'',$5,$6,$7)
	`, job.JobID, job.Status, job.SubjectRef, job.MediaType, now, now, expiresAt); execErr != nil {
		return fmt.Errorf("analysis: failed to persist job: %w", execErr)
	}
	return nil
}

// MarkRunning transitions a job to the running state.
func (s *PGJobStore) MarkRunning(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("analysis: jobID required")
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE analysis_jobs
		SET status = $2,
		    updated_at = $3
		WHERE job_id = $1
	`, jobID, JobStatusRunning, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("analysis: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkCompleted records the final result.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID string, res *Result) error {
	if jobID == "" {
		return errors.New("analysis: jobID required")
	}
	resultJSON, err := marshalJSON(res)
	if err != nil {
		return err
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE analysis_jobs
		SET status = $2,
		    result = $3,
		    error_reason = '',
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, resultJSON, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("analysis: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed records the failure reason.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	if jobID == "" {
		return errors.New("analysis: jobID required")
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE analysis_jobs
		SET status = $2,
		    result = NULL,
		    error_reason = $3,
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusFailed, reason, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("analysis: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *PGJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("analysis: jobID required")
	}

	var (
		resultJSON []byte
		createdAt  time.Time
		updatedAt  time.Time
		expiresAt  pgtype.Timestamptz
		status     string
		subjectRef string
		mediaType  string
		errReason  string
	)

	row := s.db.QueryRow(ctx, `
		SELECT job_id, status, subject_ref, media_type,
		       result, error_reason, created_at, updated_at, expires_at
		FROM analysis_jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&jobID, &status, &subjectRef, &mediaType,
		&resultJSON, &errReason, &createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("analysis: failed to fetch job: %w", err)
	}

	job := &JobRecord{
		JobID:       jobID,
		Status:      JobStatus(status),
		SubjectRef:  subjectRef,
		MediaType:   MediaType(mediaType),
		ErrorReason: errReason,
		CreatedAt:   createdAt.Format(time.RFC3339Nano),
		UpdatedAt:   updatedAt.Format(time.RFC3339Nano),
	}
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}
	if len(resultJSON) > 0 {
		var res Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return nil, fmt.Errorf("analysis: failed to decode result: %w", err)
		}
		job.Result = &res
	}

	return job, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("analysis: failed to encode json: %w", err)
	}
	return data, nil
}
