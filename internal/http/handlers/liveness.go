package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proofframe/proofframe/internal/liveness"
	"github.com/proofframe/proofframe/internal/observability/metrics"
	"github.com/proofframe/proofframe/internal/verdict"
	"github.com/proofframe/proofframe/pkg/logging"
)

// LivenessReporter appends an audit report for a terminal liveness session.
type LivenessReporter interface {
	RecordLivenessOutcome(ctx context.Context, sessionID string, v verdict.Verdict, signals []string) (string, error)
}

// LivenessHandler serves the challenge-response protocol.
type LivenessHandler struct {
	manager  *liveness.Manager
	reporter LivenessReporter
	metrics  *metrics.DecisionMetrics
	logger   *logging.Logger
}

// NewLivenessHandler creates the handler. reporter and metrics may be nil.
func NewLivenessHandler(manager *liveness.Manager, reporter LivenessReporter, m *metrics.DecisionMetrics, logger *logging.Logger) *LivenessHandler {
	if manager == nil {
		panic("handlers: liveness manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LivenessHandler{
		manager:  manager,
		reporter: reporter,
		metrics:  m,
		logger:   logger,
	}
}

type issueResponse struct {
	SessionID     string    `json:"session_id"`
	ChallengeCode string    `json:"challenge_code"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// CreateSession handles POST /liveness/sessions. The plaintext code appears
// only in this response body; it is never logged or stored.
func (h *LivenessHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	issued, err := h.manager.IssueChallenge(r.Context())
	if err != nil {
		h.logger.Error("failed to issue challenge", "error", err)
		http.Error(w, "failed to issue challenge", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, issueResponse{
		SessionID:     issued.Session.ID,
		ChallengeCode: issued.Code,
		ExpiresAt:     issued.Session.ExpiresAt,
	})
}

type livenessSubmission struct {
	Code        string                           `json:"code"`
	Fingerprint *liveness.EnvironmentFingerprint `json:"fingerprint"`
}

type livenessOutcome struct {
	SessionID string                   `json:"session_id"`
	State     liveness.State           `json:"state"`
	Reason    liveness.RejectionReason `json:"reason,omitempty"`
	Verdict   verdict.Verdict          `json:"verdict"`
	ReportID  string                   `json:"report_id,omitempty"`
}

// SubmitResponse handles POST /liveness/sessions/{sessionID}/response.
func (h *LivenessHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var sub livenessSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	session, err := h.manager.SubmitResponse(r.Context(), sessionID, sub.Code, sub.Fingerprint)
	if err != nil {
		switch {
		case errors.Is(err, liveness.ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, liveness.ErrSessionExpired):
			// Audit and metrics for the expiry itself fire from the manager's
			// expiry hook, once, whichever process records it. The session was
			// possibly swept EXPIRED earlier, so its own reason is the one to
			// report.
			reason := liveness.ReasonLateResponse
			if session != nil && session.Reason != "" {
				reason = session.Reason
			}
			writeJSON(w, http.StatusGone, livenessOutcome{
				SessionID: sessionID,
				State:     liveness.StateExpired,
				Reason:    reason,
				Verdict:   verdict.VerdictDeepfake,
			})
		case errors.Is(err, liveness.ErrDuplicateResponse):
			http.Error(w, "session already responded", http.StatusConflict)
		default:
			h.logger.Error("failed to process liveness response", "error", err, "session_id", sessionID)
			http.Error(w, "failed to process response", http.StatusInternalServerError)
		}
		return
	}

	v := verdict.DecideLiveness(session)
	h.metrics.ObserveLivenessOutcome(string(session.State), string(session.Reason))

	outcome := livenessOutcome{
		SessionID: session.ID,
		State:     session.State,
		Reason:    session.Reason,
		Verdict:   v,
	}
	if h.reporter != nil {
		reportID, err := h.reporter.RecordLivenessOutcome(r.Context(), session.ID, v, livenessSignals(session))
		if err != nil {
			h.logger.Error("failed to append liveness report", "error", err, "session_id", session.ID)
			http.Error(w, "failed to record outcome", http.StatusInternalServerError)
			return
		}
		outcome.ReportID = reportID
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetSession handles GET /liveness/sessions/{sessionID}. The code hash is
// stripped from the response.
func (h *LivenessHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, liveness.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch session", "error", err, "session_id", sessionID)
		http.Error(w, "failed to fetch session", http.StatusInternalServerError)
		return
	}
	session.ChallengeCodeHash = ""
	writeJSON(w, http.StatusOK, session)
}

// ExpiryHook builds the manager callback that lands EXPIRED sessions on the
// audit trail and the outcome metric. An unanswered challenge carries the same
// weight as a failed one. reporter and m may be nil.
func ExpiryHook(reporter LivenessReporter, m *metrics.DecisionMetrics, logger *logging.Logger) func(context.Context, *liveness.Session) {
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, s *liveness.Session) {
		m.ObserveLivenessOutcome(string(s.State), string(s.Reason))
		if reporter == nil {
			return
		}
		if _, err := reporter.RecordLivenessOutcome(ctx, s.ID, verdict.VerdictDeepfake, livenessSignals(s)); err != nil {
			logger.Error("failed to append liveness expiry report", "error", err, "session_id", s.ID)
		}
	}
}

func livenessSignals(session *liveness.Session) []string {
	if session.State == liveness.StateAccepted {
		return []string{"challenge:code_match", "environment:clean"}
	}
	if session.Reason != "" {
		return []string{"challenge:" + string(session.Reason)}
	}
	return []string{"challenge:unresolved"}
}
