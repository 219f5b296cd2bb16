package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/proofframe/proofframe/internal/audit"
	"github.com/proofframe/proofframe/internal/integrity"
	"github.com/proofframe/proofframe/internal/observability/metrics"
	"github.com/proofframe/proofframe/internal/verdict"
	"github.com/proofframe/proofframe/pkg/logging"
)

// Pipeline runs one media item through the full decision chain: integrity
// gate, score aggregation, policy decision, audit append. Pipelines are safe
// for concurrent use; nothing is shared between requests but read-only
// configuration.
type Pipeline struct {
	validator  *integrity.Validator
	thresholds map[MediaType]verdict.PolicyThresholds
	auditStore audit.Store
	analyzed   *AnalyzedMediaStore
	metrics    *metrics.DecisionMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

// PipelineOption tweaks pipeline construction.
type PipelineOption func(*Pipeline)

// WithAnalyzedStore enables the resubmission flag on the audit trail.
func WithAnalyzedStore(store *AnalyzedMediaStore) PipelineOption {
	return func(p *Pipeline) { p.analyzed = store }
}

// WithMetrics wires prometheus observation.
func WithMetrics(m *metrics.DecisionMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline assembles the decision chain. Thresholds must already be
// validated; they are read-only from here on.
func NewPipeline(
	validator *integrity.Validator,
	thresholds map[MediaType]verdict.PolicyThresholds,
	auditStore audit.Store,
	logger *logging.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if validator == nil {
		panic("analysis: integrity validator required")
	}
	if auditStore == nil {
		panic("analysis: audit store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Pipeline{
		validator:  validator,
		thresholds: thresholds,
		auditStore: auditStore,
		logger:     logger,
		tracer:     otel.Tracer("proofframe.internal.analysis"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze runs the pipeline for one request. On failure the returned Result
// carries StatusFailed and a reason, alongside the typed error: a failed
// analysis is a distinct outcome, never a default verdict.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "analysis.pipeline")
	defer span.End()
	start := time.Now()

	if err := req.Validate(); err != nil {
		return p.fail(err), err
	}
	thresholds, ok := p.thresholds[req.MediaType]
	if !ok {
		err := fmt.Errorf("analysis: %w: %s", ErrUnsupportedMediaType, req.MediaType)
		return p.fail(err), err
	}

	// Integrity gate. Nothing downstream may see unverified content.
	if err := p.validator.Verify(ctx, bytes.NewReader(req.Content), req.DeclaredChecksum); err != nil {
		span.RecordError(err)
		return p.fail(err), err
	}

	signals := []string{"integrity:checksum_verified"}

	resubmission := false
	if p.analyzed != nil {
		seen, err := p.analyzed.AlreadyAnalyzed(ctx, req.DeclaredChecksum)
		if err != nil {
			// The dedup ledger is advisory; losing it must not block verdicts.
			p.logger.Warn("resubmission check failed", "error", err)
		} else if seen {
			resubmission = true
			signals = append(signals, "resubmission:content_previously_analyzed")
		}
	}

	result, err := verdict.Aggregate(req.Samples)
	if err != nil {
		span.RecordError(err)
		return p.fail(err), err
	}
	signals = append(signals, fmt.Sprintf("aggregate:%d_units_weighted_mean", result.SampleCount))

	v, risk := verdict.Decide(result, thresholds)
	signals = append(signals, fmt.Sprintf("policy:threshold_%.2f_%s", thresholds.DeepfakeScoreThreshold, req.MediaType))

	report := audit.BuildReport(audit.BuildParams{
		SubjectRef:          req.SubjectRef,
		SubjectType:         audit.SubjectMedia,
		MediaType:           string(req.MediaType),
		Verdict:             v,
		Risk:                risk,
		Confidence:          result.MediaConfidence,
		ContributingSignals: signals,
	})
	// The verdict is only as good as its trail; a report that cannot be
	// appended fails the analysis.
	if err := p.auditStore.Append(ctx, report); err != nil {
		span.RecordError(err)
		return p.fail(err), err
	}

	if p.analyzed != nil {
		if _, err := p.analyzed.MarkAnalyzed(ctx, req.DeclaredChecksum); err != nil {
			p.logger.Warn("failed to record analyzed checksum", "error", err)
		}
	}

	p.metrics.ObserveVerdict(string(v), string(risk), string(req.MediaType))
	p.metrics.ObservePipelineLatency(string(req.MediaType), time.Since(start).Seconds())
	p.logger.Info("analysis completed",
		"subject_ref", req.SubjectRef,
		"media_type", req.MediaType,
		"verdict", v,
		"risk", risk,
		"report_id", report.ReportID,
	)

	return &Result{
		Status:          StatusCompleted,
		Verdict:         v,
		RiskLevel:       risk,
		MediaScore:      result.MediaScore,
		MediaConfidence: result.MediaConfidence,
		SampleCount:     result.SampleCount,
		ReportID:        report.ReportID,
		Resubmission:    resubmission,
	}, nil
}

// RecordLivenessOutcome appends an audit report for a terminal liveness
// session and feeds the outcome metric. The policy evaluator supplies the
// verdict; this only writes the trail.
func (p *Pipeline) RecordLivenessOutcome(ctx context.Context, sessionID string, v verdict.Verdict, signals []string) (string, error) {
	risk := verdict.RiskLow
	if v == verdict.VerdictDeepfake {
		risk = verdict.RiskHigh
	}
	report := audit.BuildReport(audit.BuildParams{
		SubjectRef:          sessionID,
		SubjectType:         audit.SubjectLivenessSession,
		Verdict:             v,
		Risk:                risk,
		Confidence:          1,
		ContributingSignals: signals,
	})
	if err := p.auditStore.Append(ctx, report); err != nil {
		return "", err
	}
	return report.ReportID, nil
}

func (p *Pipeline) fail(err error) *Result {
	reason := FailureReason(err)
	p.metrics.ObserveAnalysisFailure(reason)
	p.logger.Error("analysis failed", "reason", reason, "error", err)
	return &Result{Status: StatusFailed, FailureReason: reason}
}

// FailureReason maps an analysis-path error to the stable reason string
// surfaced to clients and metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, verdict.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, verdict.ErrInvalidWeight), errors.Is(err, verdict.ErrInvalidScore):
		return "invalid_samples"
	case errors.Is(err, integrity.ErrIntegrityMismatch):
		return "integrity_mismatch"
	case errors.Is(err, integrity.ErrUnreadableMedia):
		return "unreadable_media"
	case errors.Is(err, integrity.ErrInvalidChecksum):
		return "invalid_checksum"
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
