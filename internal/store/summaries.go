package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ContextSummary is a consolidated summary of a period of conversation and
// events. Rows are immutable once inserted; only validated summaries are
// eligible for context assembly.
type ContextSummary struct {
	ID           int64
	SummaryType  string // "daily", "weekly", ...
	PeriodStart  int64
	PeriodEnd    int64
	Summary      string
	KeyPoints    string // JSON array
	Topics       string // JSON array
	Validated    bool
	Warnings     string
	MessageCount int
	EventCount   int
	CreatedAt    int64
}

// InsertSummary stores a consolidated summary. The summary text is
// encrypted at rest.
func (db *DB) InsertSummary(s *ContextSummary) error {
	if s.SummaryType == "" {
		return fmt.Errorf("%w: summary_type required", ErrConstraintViolation)
	}
	if s.PeriodEnd <= s.PeriodStart {
		return fmt.Errorf("%w: summary period end must follow start", ErrConstraintViolation)
	}

	enc, err := db.encrypt(s.Summary)
	if err != nil {
		return fmt.Errorf("encrypt summary: %w", err)
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO context_summaries (summary_type, period_start, period_end, summary, key_points, topics, validated, warnings, message_count, event_count, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, ?)
	`, s.SummaryType, s.PeriodStart, s.PeriodEnd, enc, s.KeyPoints, s.Topics,
		boolInt(s.Validated), s.Warnings, s.MessageCount, s.EventCount, now)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	id, _ := result.LastInsertId()
	s.ID = id
	s.CreatedAt = now
	return nil
}

// LastPeriodEnd returns the newest period_end for a summary type, or 0 when
// no summary of that type exists. The consolidator starts its next period
// here so periods never overlap.
func (db *DB) LastPeriodEnd(summaryType string) (int64, error) {
	var end sql.NullInt64
	err := db.QueryRow(`
		SELECT MAX(period_end) FROM context_summaries WHERE summary_type = ?
	`, summaryType).Scan(&end)
	if err != nil {
		return 0, fmt.Errorf("last period end: %w", err)
	}
	return end.Int64, nil
}

// RecentSummaries returns up to n validated summaries of a type, newest
// period first.
func (db *DB) RecentSummaries(summaryType string, n int) ([]ContextSummary, error) {
	rows, err := db.Query(`
		SELECT id, summary_type, period_start, period_end, summary, key_points, topics, validated, warnings, message_count, event_count, created_at
		FROM context_summaries
		WHERE summary_type = ? AND validated = 1
		ORDER BY period_end DESC LIMIT ?
	`, summaryType, n)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ContextSummary
	for rows.Next() {
		var s ContextSummary
		var enc string
		var keyPoints, topics, warnings sql.NullString
		var validated int
		if err := rows.Scan(&s.ID, &s.SummaryType, &s.PeriodStart, &s.PeriodEnd, &enc,
			&keyPoints, &topics, &validated, &warnings, &s.MessageCount, &s.EventCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		plain, err := db.decrypt(enc)
		if err != nil {
			return nil, fmt.Errorf("decrypt summary %d: %w", s.ID, err)
		}
		s.Summary = plain
		s.KeyPoints = keyPoints.String
		s.Topics = topics.String
		s.Warnings = warnings.String
		s.Validated = validated != 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CountSummaries returns the total number of stored summaries.
func (db *DB) CountSummaries() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM context_summaries").Scan(&count)
	return count, err
}
