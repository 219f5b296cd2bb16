// Package verdict turns per-unit authenticity scores into a media-level
// verdict. Scoring of individual frames or audio segments happens in the
// inference collaborator; this package only aggregates and applies policy.
package verdict

// ScoreSample is one per-unit synthetic-probability estimate produced by the
// inference collaborator. Samples are immutable and consumed once.
type ScoreSample struct {
	UnitIndex       int     `json:"unit_index"`
	RawScore        float64 `json:"raw_score"`
	Weight          float64 `json:"weight"`
	TimestampOffset float64 `json:"timestamp_offset"`
}

// AggregateResult is the media-level score produced from a sample sequence.
// SampleCount is always >= 1; aggregation over zero samples fails instead.
type AggregateResult struct {
	MediaScore      float64 `json:"media_score"`
	MediaConfidence float64 `json:"media_confidence"`
	SampleCount     int     `json:"sample_count"`
}
