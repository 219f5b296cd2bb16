package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/proofframe/proofframe/internal/audit"
	"github.com/proofframe/proofframe/internal/verdict"
	"github.com/proofframe/proofframe/pkg/logging"
)

const defaultReportLimit = 50

// ReportQuerier reads audit reports for the review dashboard.
type ReportQuerier interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Report, error)
}

// AdminReportsHandler serves the report review endpoint behind admin auth.
type AdminReportsHandler struct {
	reports ReportQuerier
	logger  *logging.Logger
}

// NewAdminReportsHandler creates the handler.
func NewAdminReportsHandler(reports ReportQuerier, logger *logging.Logger) *AdminReportsHandler {
	if reports == nil {
		panic("handlers: report querier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminReportsHandler{reports: reports, logger: logger}
}

// ListReports handles GET /admin/reports with optional subject_ref,
// subject_type, verdict, since, until, limit and offset query params.
func (h *AdminReportsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		SubjectRef:  q.Get("subject_ref"),
		SubjectType: audit.SubjectType(q.Get("subject_type")),
		Verdict:     verdict.Verdict(q.Get("verdict")),
		Limit:       defaultReportLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		filter.StartTime = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid until timestamp", http.StatusBadRequest)
			return
		}
		filter.EndTime = ts
	}

	reports, err := h.reports.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query reports", "error", err)
		http.Error(w, "failed to query reports", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []audit.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
