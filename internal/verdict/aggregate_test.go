package verdict

import (
	"errors"
	"math"
	"testing"
)

func sampleSeq(scores ...float64) []ScoreSample {
	samples := make([]ScoreSample, len(scores))
	for i, s := range scores {
		samples[i] = ScoreSample{UnitIndex: i, RawScore: s, Weight: 1.0, TimestampOffset: float64(i) * 0.1}
	}
	return samples
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := Aggregate(nil)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	_, err = Aggregate([]ScoreSample{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput for empty slice, got %v", err)
	}
}

func TestAggregateRejectsInvalidSamples(t *testing.T) {
	_, err := Aggregate([]ScoreSample{{UnitIndex: 0, RawScore: 0.5, Weight: 0}})
	if !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	_, err = Aggregate([]ScoreSample{{UnitIndex: 0, RawScore: 1.2, Weight: 1}})
	if !errors.Is(err, ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
}

func TestAggregateWeightedMean(t *testing.T) {
	samples := []ScoreSample{
		{UnitIndex: 0, RawScore: 0.9, Weight: 3.0},
		{UnitIndex: 1, RawScore: 0.1, Weight: 1.0},
	}
	result, err := Aggregate(samples)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	want := (0.9*3.0 + 0.1*1.0) / 4.0
	if math.Abs(result.MediaScore-want) > 1e-9 {
		t.Errorf("expected media score %v, got %v", want, result.MediaScore)
	}
	if result.SampleCount != 2 {
		t.Errorf("expected sample count 2, got %d", result.SampleCount)
	}
}

func TestAggregateBounds(t *testing.T) {
	sequences := [][]ScoreSample{
		sampleSeq(0, 0, 0),
		sampleSeq(1, 1, 1, 1),
		sampleSeq(0, 1, 0, 1),
		sampleSeq(0.5),
		{{UnitIndex: 0, RawScore: 1, Weight: 0.001}, {UnitIndex: 1, RawScore: 0, Weight: 1000}},
	}
	for i, samples := range sequences {
		result, err := Aggregate(samples)
		if err != nil {
			t.Fatalf("sequence %d: Aggregate failed: %v", i, err)
		}
		if result.MediaScore < 0 || result.MediaScore > 1 {
			t.Errorf("sequence %d: media score %v outside [0,1]", i, result.MediaScore)
		}
		if result.MediaConfidence < 0 || result.MediaConfidence > 1 {
			t.Errorf("sequence %d: media confidence %v outside [0,1]", i, result.MediaConfidence)
		}
	}
}

func TestAggregateScoreMonotonicity(t *testing.T) {
	base := sampleSeq(0.2, 0.5, 0.7, 0.4)
	before, err := Aggregate(base)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	raised := make([]ScoreSample, len(base))
	copy(raised, base)
	for i := range raised {
		raised[i].RawScore = math.Min(1, raised[i].RawScore+0.2)
	}
	after, err := Aggregate(raised)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if after.MediaScore < before.MediaScore {
		t.Errorf("raising every raw score decreased media score: %v -> %v", before.MediaScore, after.MediaScore)
	}
}

func TestConfidenceDecreasesWithVariance(t *testing.T) {
	agree, err := Aggregate(sampleSeq(0.5, 0.5, 0.5, 0.5))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	disagree, err := Aggregate(sampleSeq(0.1, 0.9, 0.1, 0.9))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if disagree.MediaConfidence >= agree.MediaConfidence {
		t.Errorf("disagreeing units should lower confidence: agree=%v disagree=%v",
			agree.MediaConfidence, disagree.MediaConfidence)
	}
}

func TestConfidenceSaturatesWithCount(t *testing.T) {
	prev := -1.0
	for _, n := range []int{1, 2, 4, 8, 32} {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = 0.8
		}
		result, err := Aggregate(sampleSeq(scores...))
		if err != nil {
			t.Fatalf("Aggregate failed for n=%d: %v", n, err)
		}
		if result.MediaConfidence <= prev {
			t.Errorf("confidence did not increase with count: n=%d conf=%v prev=%v", n, result.MediaConfidence, prev)
		}
		if result.MediaConfidence > 1 {
			t.Errorf("confidence %v above saturation ceiling", result.MediaConfidence)
		}
		prev = result.MediaConfidence
	}
}
