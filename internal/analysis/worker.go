package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/proofframe/proofframe/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// Worker consumes analysis jobs from the queue and runs them through the
// pipeline, recording the outcome on the job store.
type Worker struct {
	pipeline *Pipeline
	queue    queueClient
	jobs     JobUpdater
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker constructs a queue consumer around the provided pipeline.
func NewWorker(pipeline *Pipeline, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if pipeline == nil {
		panic("analysis: pipeline cannot be nil")
	}
	if queue == nil {
		panic("analysis: queue cannot be nil")
	}
	if jobs == nil {
		panic("analysis: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		pipeline: pipeline,
		queue:    queue,
		jobs:     jobs,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("analysis worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("analysis worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive analysis jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.process(ctx, msg, workerID)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queueMessage, workerID int) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		// An undecodable message can never succeed; drop it.
		w.logger.Error("dropping malformed analysis job", "error", err, "worker_id", workerID)
		w.deleteMessage(msg)
		return
	}

	if err := w.jobs.MarkRunning(ctx, payload.JobID); err != nil && !errors.Is(err, ErrJobNotFound) {
		w.logger.Warn("failed to mark job running", "error", err, "job_id", payload.JobID)
	}

	result, err := w.pipeline.Analyze(ctx, payload.Request)
	if err != nil {
		reason := FailureReason(err)
		if markErr := w.jobs.MarkFailed(ctx, payload.JobID, reason); markErr != nil {
			w.logger.Error("failed to mark job failed", "error", markErr, "job_id", payload.JobID)
		}
		w.deleteMessage(msg)
		return
	}

	if err := w.jobs.MarkCompleted(ctx, payload.JobID, result); err != nil {
		w.logger.Error("failed to mark job completed", "error", err, "job_id", payload.JobID)
	}
	w.deleteMessage(msg)
}

func (w *Worker) deleteMessage(msg queueMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("failed to delete queue message", "error", err, "message_id", msg.ID)
	}
}
