package verdict

import (
	"testing"
	"time"

	"github.com/proofframe/proofframe/internal/liveness"
)

func testThresholds() PolicyThresholds {
	t := DefaultVideoThresholds()
	t.DeepfakeScoreThreshold = 0.7
	return t
}

func TestDecideThresholdBoundary(t *testing.T) {
	thresholds := testThresholds()
	result := AggregateResult{MediaScore: 0.7, MediaConfidence: 0.9, SampleCount: 5}

	v, _ := Decide(result, thresholds)
	if v != VerdictDeepfake {
		t.Errorf("score exactly at threshold must classify DEEPFAKE, got %s", v)
	}

	result.MediaScore = 0.6999999
	v, _ = Decide(result, thresholds)
	if v != VerdictReal {
		t.Errorf("score below threshold must classify REAL, got %s", v)
	}
}

func TestDecideRiskTiers(t *testing.T) {
	thresholds := testThresholds()

	tests := []struct {
		name       string
		score      float64
		confidence float64
		verdict    Verdict
		risk       RiskLevel
	}{
		{"high score high confidence", 0.9, 0.9, VerdictDeepfake, RiskCritical},
		{"extreme score low confidence", 0.99, 0.2, VerdictDeepfake, RiskCritical},
		{"moderate margin", 0.78, 0.6, VerdictDeepfake, RiskHigh},
		{"boundary deepfake", 0.7, 0.9, VerdictDeepfake, RiskMedium},
		{"deepfake low confidence", 0.9, 0.3, VerdictDeepfake, RiskMedium},
		{"confident real", 0.1, 0.8, VerdictReal, RiskLow},
		{"uncertain real", 0.3, 0.2, VerdictReal, RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregateResult{MediaScore: tt.score, MediaConfidence: tt.confidence, SampleCount: 3}
			v, r := Decide(result, thresholds)
			if v != tt.verdict || r != tt.risk {
				t.Errorf("Decide(%v, %v) = (%s, %s), want (%s, %s)",
					tt.score, tt.confidence, v, r, tt.verdict, tt.risk)
			}
		})
	}
}

func TestEndToEndScenarios(t *testing.T) {
	thresholds := testThresholds()

	// Three agreeing high scores: deepfake at critical risk.
	result, err := Aggregate(sampleSeq(0.9, 0.92, 0.88))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	v, r := Decide(result, thresholds)
	if v != VerdictDeepfake || r != RiskCritical {
		t.Errorf("scenario A: got (%s, %s), want (DEEPFAKE, CRITICAL); result=%+v", v, r, result)
	}

	// One confident low score: real at low risk.
	result, err = Aggregate(sampleSeq(0.1))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	v, r = Decide(result, thresholds)
	if v != VerdictReal || r != RiskLow {
		t.Errorf("scenario B: got (%s, %s), want (REAL, LOW); result=%+v", v, r, result)
	}
}

func TestDecideLiveness(t *testing.T) {
	now := time.Now()
	mk := func(state liveness.State) *liveness.Session {
		return &liveness.Session{ID: "s", State: state, CreatedAt: now, ExpiresAt: now.Add(400 * time.Second)}
	}

	if v := DecideLiveness(mk(liveness.StateAccepted)); v != VerdictReal {
		t.Errorf("ACCEPTED should pass, got %s", v)
	}
	if v := DecideLiveness(mk(liveness.StateRejected)); v != VerdictDeepfake {
		t.Errorf("REJECTED should fail, got %s", v)
	}
	if v := DecideLiveness(mk(liveness.StateExpired)); v != VerdictDeepfake {
		t.Errorf("EXPIRED should fail, got %s", v)
	}
	if v := DecideLiveness(nil); v != VerdictDeepfake {
		t.Errorf("missing session should fail, got %s", v)
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultVideoThresholds().Validate(); err != nil {
		t.Fatalf("default video thresholds should validate: %v", err)
	}
	if err := DefaultAudioThresholds().Validate(); err != nil {
		t.Fatalf("default audio thresholds should validate: %v", err)
	}

	bad := DefaultVideoThresholds()
	bad.DeepfakeScoreThreshold = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("threshold above 1 should fail validation")
	}

	bad = DefaultVideoThresholds()
	bad.HighMargin = 0.3 // above CriticalMargin
	if err := bad.Validate(); err == nil {
		t.Error("inverted margins should fail validation")
	}
}
