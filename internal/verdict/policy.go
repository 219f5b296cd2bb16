package verdict

import (
	"fmt"

	"github.com/proofframe/proofframe/internal/liveness"
)

// Verdict is the final binary classification of a media item.
type Verdict string

const (
	VerdictReal     Verdict = "REAL"
	VerdictDeepfake Verdict = "DEEPFAKE"
)

// RiskLevel is the escalation tier attached to a verdict for downstream
// triage.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// PolicyThresholds is the immutable policy configuration shared by all
// evaluations. It is constructed once at process start; nothing mutates it
// per request, so independent policy sets can run concurrently in tests.
type PolicyThresholds struct {
	// DeepfakeScoreThreshold classifies DEEPFAKE at scores >= this value.
	// The comparison is >=, so a boundary score is DEEPFAKE.
	DeepfakeScoreThreshold float64

	// ExtremeScore escalates to CRITICAL outright when exceeded, regardless
	// of confidence.
	ExtremeScore float64

	// CriticalMargin and HighMargin are distances above the threshold that,
	// paired with the confidence gates below, select the risk tier for a
	// DEEPFAKE verdict.
	CriticalMargin float64
	HighMargin     float64

	// HighConfidence gates CRITICAL; MediumConfidence gates HIGH.
	HighConfidence   float64
	MediumConfidence float64

	// LowConfidenceFloor demotes a REAL verdict to MEDIUM risk when
	// confidence falls below it: uncertain-real is never reported as
	// confirmed-real.
	LowConfidenceFloor float64
}

// DefaultVideoThresholds returns the video policy.
func DefaultVideoThresholds() PolicyThresholds {
	return PolicyThresholds{
		DeepfakeScoreThreshold: 0.75,
		ExtremeScore:           0.98,
		CriticalMargin:         0.15,
		HighMargin:             0.05,
		HighConfidence:         0.75,
		MediumConfidence:       0.50,
		LowConfidenceFloor:     0.50,
	}
}

// DefaultAudioThresholds returns the audio policy. Audio scoring is
// heuristic-based upstream, so the deepfake threshold sits lower.
func DefaultAudioThresholds() PolicyThresholds {
	t := DefaultVideoThresholds()
	t.DeepfakeScoreThreshold = 0.70
	return t
}

// Validate rejects threshold sets that cannot classify anything sensibly.
// A failure here is fatal to process start.
func (t PolicyThresholds) Validate() error {
	if t.DeepfakeScoreThreshold <= 0 || t.DeepfakeScoreThreshold >= 1 {
		return fmt.Errorf("verdict: deepfake score threshold %v outside (0,1)", t.DeepfakeScoreThreshold)
	}
	if t.ExtremeScore < t.DeepfakeScoreThreshold || t.ExtremeScore > 1 {
		return fmt.Errorf("verdict: extreme score %v must be in [threshold,1]", t.ExtremeScore)
	}
	if t.CriticalMargin < t.HighMargin || t.HighMargin < 0 {
		return fmt.Errorf("verdict: risk margins must satisfy 0 <= high (%v) <= critical (%v)", t.HighMargin, t.CriticalMargin)
	}
	for name, v := range map[string]float64{
		"high confidence":      t.HighConfidence,
		"medium confidence":    t.MediumConfidence,
		"low confidence floor": t.LowConfidenceFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("verdict: %s %v outside [0,1]", name, v)
		}
	}
	return nil
}

// Decide maps an aggregate result to a verdict and risk level under the
// given policy. Pure: thresholds are read-only, nothing else is touched.
func Decide(result AggregateResult, thresholds PolicyThresholds) (Verdict, RiskLevel) {
	if result.MediaScore >= thresholds.DeepfakeScoreThreshold {
		return VerdictDeepfake, deepfakeRisk(result, thresholds)
	}
	if result.MediaConfidence < thresholds.LowConfidenceFloor {
		return VerdictReal, RiskMedium
	}
	return VerdictReal, RiskLow
}

func deepfakeRisk(result AggregateResult, t PolicyThresholds) RiskLevel {
	margin := result.MediaScore - t.DeepfakeScoreThreshold
	switch {
	case result.MediaScore > t.ExtremeScore:
		return RiskCritical
	case margin >= t.CriticalMargin && result.MediaConfidence >= t.HighConfidence:
		return RiskCritical
	case margin >= t.HighMargin && result.MediaConfidence >= t.MediumConfidence:
		return RiskHigh
	default:
		return RiskMedium
	}
}

// DecideLiveness folds a terminal liveness session into the verdict
// vocabulary: only an accepted session passes. REJECTED and EXPIRED are both
// treated as suspicious, since an expired window proves nothing about the
// subject.
func DecideLiveness(session *liveness.Session) Verdict {
	if session != nil && session.State == liveness.StateAccepted {
		return VerdictReal
	}
	return VerdictDeepfake
}
