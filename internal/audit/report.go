// Package audit builds and persists the forensic trail. Reports are
// immutable once created and the store is append-only; overwriting or
// deleting a report would break the trail, so no such path exists.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proofframe/proofframe/internal/verdict"
)

// SubjectType distinguishes what a report is about.
type SubjectType string

const (
	SubjectMedia           SubjectType = "media"
	SubjectLivenessSession SubjectType = "liveness_session"
)

// Report is one immutable audit record. ContributingSignals preserves the
// order in which signals were considered.
type Report struct {
	ReportID            string              `json:"report_id"`
	Timestamp           time.Time           `json:"timestamp"`
	SubjectRef          string              `json:"subject_ref"`
	SubjectType         SubjectType         `json:"subject_type"`
	MediaType           string              `json:"media_type,omitempty"`
	Verdict             verdict.Verdict     `json:"verdict"`
	ConfidencePercent   float64             `json:"confidence_percent"`
	RiskLevel           verdict.RiskLevel   `json:"risk_level"`
	ContributingSignals []string            `json:"contributing_signals"`
	Summary             string              `json:"summary"`
}

// BuildParams carries everything a report is constructed from.
type BuildParams struct {
	SubjectRef          string
	SubjectType         SubjectType
	MediaType           string
	Verdict             verdict.Verdict
	Risk                verdict.RiskLevel
	Confidence          float64 // [0,1]
	ContributingSignals []string
}

// BuildReport constructs a report. Pure: the only side effect in this
// package is Store.Append.
func BuildReport(p BuildParams) Report {
	signals := make([]string, len(p.ContributingSignals))
	copy(signals, p.ContributingSignals)

	return Report{
		ReportID:            uuid.NewString(),
		Timestamp:           time.Now().UTC(),
		SubjectRef:          p.SubjectRef,
		SubjectType:         p.SubjectType,
		MediaType:           p.MediaType,
		Verdict:             p.Verdict,
		ConfidencePercent:   roundPercent(p.Confidence),
		RiskLevel:           p.Risk,
		ContributingSignals: signals,
		Summary:             summarize(p),
	}
}

// summarize renders the human-readable explanation line shown on the
// dashboard next to the raw record.
func summarize(p BuildParams) string {
	var b strings.Builder
	switch p.SubjectType {
	case SubjectLivenessSession:
		if p.Verdict == verdict.VerdictReal {
			b.WriteString("Live presence confirmed via challenge-response")
		} else {
			b.WriteString("Live presence could not be confirmed")
		}
	default:
		fmt.Fprintf(&b, "Media classified %s at %.1f%% confidence", p.Verdict, roundPercent(p.Confidence))
	}
	fmt.Fprintf(&b, "; risk level %s", p.Risk)
	if len(p.ContributingSignals) > 0 {
		fmt.Fprintf(&b, " (signals: %s)", strings.Join(p.ContributingSignals, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func roundPercent(confidence float64) float64 {
	pct := confidence * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	// one decimal place, matching the dashboard rendering
	return float64(int(pct*10+0.5)) / 10
}
