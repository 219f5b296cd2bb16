package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proofframe/proofframe/internal/analysis"
	"github.com/proofframe/proofframe/internal/integrity"
	"github.com/proofframe/proofframe/internal/verdict"
	"github.com/proofframe/proofframe/pkg/logging"
)

// AnalysisHandler serves media analysis submissions and job polls.
type AnalysisHandler struct {
	pipeline  *analysis.Pipeline
	submitter *analysis.Submitter
	jobs      analysis.JobRecorder
	logger    *logging.Logger
}

// NewAnalysisHandler creates the handler. submitter and jobs may be nil when
// async submission is disabled; pipeline is required.
func NewAnalysisHandler(pipeline *analysis.Pipeline, submitter *analysis.Submitter, jobs analysis.JobRecorder, logger *logging.Logger) *AnalysisHandler {
	if pipeline == nil {
		panic("handlers: pipeline cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AnalysisHandler{
		pipeline:  pipeline,
		submitter: submitter,
		jobs:      jobs,
		logger:    logger,
	}
}

type analysisSubmission struct {
	analysis.Request
	Async bool `json:"async,omitempty"`
}

// Submit handles POST /analysis. Synchronous by default; async=true enqueues
// and returns 202 with a job ID to poll.
func (h *AnalysisHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub analysisSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := sub.Request.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if sub.Async {
		if h.submitter == nil {
			http.Error(w, "async analysis disabled", http.StatusNotImplemented)
			return
		}
		jobID, err := h.submitter.Submit(r.Context(), sub.Request)
		if err != nil {
			h.logger.Error("failed to enqueue analysis", "error", err)
			http.Error(w, "failed to enqueue analysis", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": jobID,
			"status": analysis.JobStatusQueued,
		})
		return
	}

	result, err := h.pipeline.Analyze(r.Context(), sub.Request)
	if err != nil {
		writeJSON(w, analysisFailureStatus(err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetJob handles GET /analysis/{jobID}.
func (h *AnalysisHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "async analysis disabled", http.StatusNotImplemented)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch job", "error", err, "job_id", jobID)
		http.Error(w, "failed to fetch job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// analysisFailureStatus distinguishes caller mistakes from content problems
// and infrastructure failures. A failed analysis is never dressed up as a
// verdict; the body still carries the failed Result.
func analysisFailureStatus(err error) int {
	switch {
	case errors.Is(err, verdict.ErrEmptyInput),
		errors.Is(err, verdict.ErrInvalidWeight),
		errors.Is(err, verdict.ErrInvalidScore),
		errors.Is(err, integrity.ErrInvalidChecksum),
		errors.Is(err, analysis.ErrUnsupportedMediaType):
		return http.StatusBadRequest
	case errors.Is(err, integrity.ErrIntegrityMismatch),
		errors.Is(err, integrity.ErrUnreadableMedia):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
