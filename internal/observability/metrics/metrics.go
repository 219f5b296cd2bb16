package metrics

import "github.com/prometheus/client_golang/prometheus"

// DecisionMetrics exposes counters/histograms for the verdict pipeline and
// the liveness protocol.
type DecisionMetrics struct {
	verdictsTotal    *prometheus.CounterVec
	analysisFailures *prometheus.CounterVec
	pipelineLatency  *prometheus.HistogramVec
	livenessOutcomes *prometheus.CounterVec
}

func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	m := &DecisionMetrics{
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proofframe",
			Subsystem: "verdict",
			Name:      "decisions_total",
			Help:      "Total media verdicts by verdict, risk level and media type",
		}, []string{"verdict", "risk", "media_type"}),
		analysisFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proofframe",
			Subsystem: "verdict",
			Name:      "analysis_failures_total",
			Help:      "Total failed analyses by reason",
		}, []string{"reason"}),
		pipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proofframe",
			Subsystem: "verdict",
			Name:      "pipeline_latency_seconds",
			Help:      "Latency of the full analysis pipeline",
			Buckets:   prometheus.DefBuckets,
		}, []string{"media_type"}),
		livenessOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proofframe",
			Subsystem: "liveness",
			Name:      "session_outcomes_total",
			Help:      "Terminal liveness session states by state and reason",
		}, []string{"state", "reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.verdictsTotal, m.analysisFailures, m.pipelineLatency, m.livenessOutcomes)
	return m
}

func (m *DecisionMetrics) ObserveVerdict(verdict, risk, mediaType string) {
	if m == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(verdict, risk, mediaType).Inc()
}

func (m *DecisionMetrics) ObserveAnalysisFailure(reason string) {
	if m == nil {
		return
	}
	m.analysisFailures.WithLabelValues(reason).Inc()
}

func (m *DecisionMetrics) ObservePipelineLatency(mediaType string, seconds float64) {
	if m == nil {
		return
	}
	m.pipelineLatency.WithLabelValues(mediaType).Observe(seconds)
}

func (m *DecisionMetrics) ObserveLivenessOutcome(state, reason string) {
	if m == nil {
		return
	}
	m.livenessOutcomes.WithLabelValues(state, reason).Inc()
}
