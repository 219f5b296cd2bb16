// Package analysis orchestrates the verdict pipeline: integrity gate,
// score aggregation, policy decision, audit append.
package analysis

import (
	"errors"
	"strings"

	"github.com/proofframe/proofframe/internal/verdict"
)

// MediaType selects which policy thresholds apply.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// ErrUnsupportedMediaType is returned for media types with no configured
// policy.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Request is one media analysis submission: the scores come from the
// inference collaborator, the content and declared checksum from the media
// storage collaborator.
type Request struct {
	SubjectRef       string                `json:"subject_ref"`
	MediaType        MediaType             `json:"media_type"`
	DeclaredChecksum string                `json:"declared_checksum"`
	Content          []byte                `json:"content,omitempty"`
	Samples          []verdict.ScoreSample `json:"samples"`
}

// Validate checks the request shape before the pipeline runs. Sample-level
// validation belongs to the aggregator.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.SubjectRef) == "" {
		return errors.New("subject_ref is required")
	}
	switch r.MediaType {
	case MediaVideo, MediaAudio:
	default:
		return ErrUnsupportedMediaType
	}
	return nil
}

// Status distinguishes a produced verdict from a failed analysis. A failure
// is never coerced into REAL or DEEPFAKE.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Status          Status            `json:"status"`
	Verdict         verdict.Verdict   `json:"verdict,omitempty"`
	RiskLevel       verdict.RiskLevel `json:"risk_level,omitempty"`
	MediaScore      float64           `json:"media_score,omitempty"`
	MediaConfidence float64           `json:"media_confidence,omitempty"`
	SampleCount     int               `json:"sample_count,omitempty"`
	ReportID        string            `json:"report_id,omitempty"`
	Resubmission    bool              `json:"resubmission,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
}
