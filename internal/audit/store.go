package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/proofframe/proofframe/internal/verdict"
)

// Store is the append-only report sink. Implementations must not expose any
// mutation beyond Append.
type Store interface {
	Append(ctx context.Context, report Report) error
}

// Filter selects reports for the dashboard collaborator.
type Filter struct {
	SubjectRef  string
	SubjectType SubjectType
	Verdict     verdict.Verdict
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
	Offset      int
}

// SQLStore persists reports to the audit_reports table. Only INSERT and
// SELECT statements exist here.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQL-backed audit store.
func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("audit: sql db required")
	}
	return &SQLStore{db: db}
}

// Append writes one report. The primary key on report_id makes accidental
// re-appends fail loudly instead of overwriting.
func (s *SQLStore) Append(ctx context.Context, report Report) error {
	signals, err := json.Marshal(report.ContributingSignals)
	if err != nil {
		return fmt.Errorf("audit: failed to encode signals: %w", err)
	}

	query := `
		INSERT INTO audit_reports (
			report_id, created_at, subject_ref, subject_type, media_type,
			verdict, confidence_percent, risk_level, contributing_signals, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		report.ReportID,
		report.Timestamp,
		report.SubjectRef,
		string(report.SubjectType),
		nullString(report.MediaType),
		string(report.Verdict),
		report.ConfidencePercent,
		string(report.RiskLevel),
		signals,
		report.Summary,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to append report: %w", err)
	}
	return nil
}

// Query retrieves reports matching the filter, newest first.
func (s *SQLStore) Query(ctx context.Context, filter Filter) ([]Report, error) {
	query := `
		SELECT report_id, created_at, subject_ref, subject_type, media_type,
			   verdict, confidence_percent, risk_level, contributing_signals, summary
		FROM audit_reports
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.SubjectRef != "" {
		query += fmt.Sprintf(" AND subject_ref = $%d", argIdx)
		args = append(args, filter.SubjectRef)
		argIdx++
	}
	if filter.SubjectType != "" {
		query += fmt.Sprintf(" AND subject_type = $%d", argIdx)
		args = append(args, string(filter.SubjectType))
		argIdx++
	}
	if filter.Verdict != "" {
		query += fmt.Sprintf(" AND verdict = $%d", argIdx)
		args = append(args, string(filter.Verdict))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var mediaType sql.NullString
		var signals []byte
		err := rows.Scan(
			&r.ReportID, &r.Timestamp, &r.SubjectRef, &r.SubjectType, &mediaType,
			&r.Verdict, &r.ConfidencePercent, &r.RiskLevel, &signals, &r.Summary,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan report: %w", err)
		}
		r.MediaType = mediaType.String
		if len(signals) > 0 {
			if err := json.Unmarshal(signals, &r.ContributingSignals); err != nil {
				return nil, fmt.Errorf("audit: failed to decode signals: %w", err)
			}
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// MemoryStore is an append-only in-memory store for single-process edge
// deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []Report
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records a report.
func (m *MemoryStore) Append(ctx context.Context, report Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reports {
		if existing.ReportID == report.ReportID {
			return fmt.Errorf("audit: report %s already appended", report.ReportID)
		}
	}
	m.reports = append(m.reports, report)
	return nil
}

// Query retrieves reports matching the filter, newest first.
func (m *MemoryStore) Query(_ context.Context, filter Filter) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Report
	for i := len(m.reports) - 1; i >= 0; i-- {
		r := m.reports[i]
		if filter.SubjectRef != "" && r.SubjectRef != filter.SubjectRef {
			continue
		}
		if filter.SubjectType != "" && r.SubjectType != filter.SubjectType {
			continue
		}
		if filter.Verdict != "" && r.Verdict != filter.Verdict {
			continue
		}
		if !filter.StartTime.IsZero() && r.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && r.Timestamp.After(filter.EndTime) {
			continue
		}
		matched = append(matched, r)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Reports returns a copy of every appended report, oldest first.
func (m *MemoryStore) Reports() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Report, len(m.reports))
	copy(out, m.reports)
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
