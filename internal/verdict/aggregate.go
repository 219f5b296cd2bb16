package verdict

import "fmt"

const (
	// confidenceSaturation controls how quickly confidence grows with sample
	// count: count factor = n / (n + confidenceSaturation). A single sample
	// yields ~0.67, three samples ~0.86, trending to 1.
	confidenceSaturation = 0.5

	// maxScoreVariance is the largest possible variance of values in [0,1],
	// reached when half the mass sits at 0 and half at 1.
	maxScoreVariance = 0.25
)

// Aggregate combines an ordered sequence of per-unit scores into one
// media-level score and confidence. It is a pure function: no state survives
// between calls.
//
// MediaScore is the weight-normalized mean, so occluded or low-quality units
// (small weight) contribute less than clear detections. MediaConfidence falls
// as the units disagree (weighted score variance) and rises, saturating, with
// sample count.
func Aggregate(samples []ScoreSample) (AggregateResult, error) {
	if len(samples) == 0 {
		return AggregateResult{}, ErrEmptyInput
	}

	var weightSum, weightedScoreSum float64
	for _, s := range samples {
		if s.Weight <= 0 {
			return AggregateResult{}, fmt.Errorf("verdict: unit %d: %w", s.UnitIndex, ErrInvalidWeight)
		}
		if s.RawScore < 0 || s.RawScore > 1 {
			return AggregateResult{}, fmt.Errorf("verdict: unit %d: %w", s.UnitIndex, ErrInvalidScore)
		}
		weightSum += s.Weight
		weightedScoreSum += s.Weight * s.RawScore
	}

	mean := weightedScoreSum / weightSum

	var variance float64
	for _, s := range samples {
		d := s.RawScore - mean
		variance += s.Weight * d * d
	}
	variance /= weightSum

	n := float64(len(samples))
	countFactor := n / (n + confidenceSaturation)
	agreement := 1 - variance/maxScoreVariance
	if agreement < 0 {
		agreement = 0
	}

	return AggregateResult{
		MediaScore:      clamp01(mean),
		MediaConfidence: clamp01(countFactor * agreement),
		SampleCount:     len(samples),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
