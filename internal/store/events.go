package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Event is an immutable observation from a device or external source.
// Retention depends on significance.
type Event struct {
	ID           int64
	EventID      string // external id, unique
	Source       string
	EventType    string
	Significance string // "routine", "significant", "critical"
	Title        string
	Description  string
	Data         string // structured payload, JSON
	Mentioned    bool
	Acknowledged bool
	OccurredAt   int64
	CreatedAt    int64
	ExpiresAt    *int64
}

// EventRetention holds per-significance retention in days.
type EventRetention struct {
	RoutineDays     int
	SignificantDays int
	CriticalDays    int
}

// RecordEvent inserts an event row. Duplicate event ids are rejected so a
// re-delivered upstream event cannot double-log.
func (db *DB) RecordEvent(e *Event) error {
	if e.EventID == "" {
		return fmt.Errorf("%w: event_id required", ErrConstraintViolation)
	}
	switch e.Significance {
	case "routine", "significant", "critical":
	default:
		return fmt.Errorf("%w: unknown significance %q", ErrConstraintViolation, e.Significance)
	}

	now := time.Now().UnixMilli()
	if e.OccurredAt == 0 {
		e.OccurredAt = now
	}

	desc, err := db.encrypt(e.Description)
	if err != nil {
		return fmt.Errorf("encrypt event description: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO events (event_id, source, event_type, significance, title, description, data, mentioned, acknowledged, occurred_at, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), 0, 0, ?, ?, ?)
	`, e.EventID, e.Source, e.EventType, e.Significance, e.Title, desc, e.Data, e.OccurredAt, now, e.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: event %s already recorded", ErrConstraintViolation, e.EventID)
		}
		return fmt.Errorf("record event: %w", err)
	}

	id, _ := result.LastInsertId()
	e.ID = id
	e.CreatedAt = now
	return nil
}

// UnmentionedEvents returns events not yet surfaced in conversation, most
// recent first. significance filters to one level when non-empty; since
// bounds the scan.
func (db *DB) UnmentionedEvents(significance string, since int64, limit int) ([]Event, error) {
	query := `
		SELECT id, event_id, source, event_type, significance, title, description, data, mentioned, acknowledged, occurred_at, created_at, expires_at
		FROM events WHERE mentioned = 0 AND occurred_at >= ?`
	args := []any{since}
	if significance != "" {
		query += " AND significance = ?"
		args = append(args, significance)
	}
	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("unmentioned events: %w", err)
	}
	defer rows.Close()
	return db.scanEvents(rows)
}

// MarkEventMentioned flags an event as surfaced in conversation.
func (db *DB) MarkEventMentioned(eventID string) error {
	result, err := db.Exec("UPDATE events SET mentioned = 1 WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("mark event mentioned: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return nil
}

// AcknowledgeEvent flags an event as acknowledged by the user.
func (db *DB) AcknowledgeEvent(eventID string) error {
	result, err := db.Exec("UPDATE events SET acknowledged = 1 WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("acknowledge event: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return nil
}

// PruneEvents deletes events past their significance retention, plus any
// event whose explicit expiry has passed. Returns rows removed.
func (db *DB) PruneEvents(now int64, r EventRetention) (int, error) {
	result, err := db.Exec(`
		DELETE FROM events
		WHERE (expires_at IS NOT NULL AND expires_at <= ?)
		   OR (significance = 'routine'     AND occurred_at < ?)
		   OR (significance = 'significant' AND occurred_at < ?)
		   OR (significance = 'critical'    AND occurred_at < ?)
	`, now,
		now-int64(r.RoutineDays)*dayMs,
		now-int64(r.SignificantDays)*dayMs,
		now-int64(r.CriticalDays)*dayMs)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// EventsBetween returns events with start < occurred_at <= end, oldest
// first, for consolidation.
func (db *DB) EventsBetween(start, end int64) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, event_id, source, event_type, significance, title, description, data, mentioned, acknowledged, occurred_at, created_at, expires_at
		FROM events WHERE occurred_at > ? AND occurred_at <= ? ORDER BY occurred_at ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	defer rows.Close()
	return db.scanEvents(rows)
}

func (db *DB) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var desc, data sql.NullString
		var mentioned, acked int
		var expires sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EventID, &e.Source, &e.EventType, &e.Significance,
			&e.Title, &desc, &data, &mentioned, &acked, &e.OccurredAt, &e.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		plain, err := db.decrypt(desc.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt event %s: %w", e.EventID, err)
		}
		e.Description = plain
		e.Data = data.String
		e.Mentioned = mentioned != 0
		e.Acknowledged = acked != 0
		if expires.Valid {
			e.ExpiresAt = &expires.Int64
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
