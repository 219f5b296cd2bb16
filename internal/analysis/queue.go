package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	JobID   string  `json:"job_id"`
	Request Request `json:"request"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("analysis: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("analysis: failed to decode payload: %w", err)
	}
	return payload, nil
}

// Submitter enqueues analysis requests for asynchronous processing and
// records a queued job so the API can answer polls before a worker picks
// the request up.
type Submitter struct {
	queue queueClient
	jobs  JobRecorder
}

// NewSubmitter builds a Submitter. Both collaborators are required.
func NewSubmitter(queue queueClient, jobs JobRecorder) *Submitter {
	if queue == nil {
		panic("analysis: queue cannot be nil")
	}
	if jobs == nil {
		panic("analysis: job store cannot be nil")
	}
	return &Submitter{queue: queue, jobs: jobs}
}

// Submit validates the request, records a queued job and enqueues it.
// Returns the job ID the caller polls with.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	payload, body, err := encodePayload(queuePayload{Request: req})
	if err != nil {
		return "", err
	}

	job := &JobRecord{
		JobID:      payload.JobID,
		SubjectRef: req.SubjectRef,
		MediaType:  req.MediaType,
	}
	if err := s.jobs.PutQueued(ctx, job); err != nil {
		return "", err
	}

	if err := s.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("analysis: failed to enqueue job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}
