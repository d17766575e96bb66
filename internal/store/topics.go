package store

import (
	"database/sql"
	"fmt"
	"time"
)

// PendingTopic is a queued proactive-conversation topic. Every topic
// carries a hard expiry; the queue is bounded and swept hourly.
type PendingTopic struct {
	ID            int64
	TopicType     string
	Title         string
	Content       string
	SourceEventID string
	Priority      int // 0..100
	Status        string
	CreatedAt     int64
	ExpiresAt     int64
	MentionedAt   *int64
}

// TopicPolicy holds the queue bounds enforced by enqueue and sweep.
type TopicPolicy struct {
	MaxPending     int
	MaxHorizonDays int
	TerminalTTLHrs int
}

const dayMs = int64(24 * time.Hour / time.Millisecond)

// EnqueueTopic inserts a pending topic. A missing expiry is rejected; an
// expiry beyond the horizon is capped. The cap is unconditional so no
// producer can park a high-priority topic in the queue forever.
func (db *DB) EnqueueTopic(t *PendingTopic, p TopicPolicy) error {
	if t.Title == "" {
		return fmt.Errorf("%w: title required", ErrConstraintViolation)
	}
	if t.ExpiresAt == 0 {
		return fmt.Errorf("%w: expires_at required", ErrConstraintViolation)
	}
	if t.Priority < 0 || t.Priority > 100 {
		return fmt.Errorf("%w: priority %d out of range", ErrConstraintViolation, t.Priority)
	}

	now := time.Now().UnixMilli()
	horizon := now + int64(p.MaxHorizonDays)*dayMs
	if t.ExpiresAt > horizon {
		t.ExpiresAt = horizon
	}

	result, err := db.Exec(`
		INSERT INTO pending_topics (topic_type, title, content, source_event_id, priority, status, created_at, expires_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, 'pending', ?, ?)
	`, t.TopicType, t.Title, t.Content, t.SourceEventID, t.Priority, now, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("enqueue topic: %w", err)
	}

	id, _ := result.LastInsertId()
	t.ID = id
	t.Status = "pending"
	t.CreatedAt = now
	return nil
}

// DequeuePending returns up to limit pending, non-expired topics ordered by
// priority descending, then creation time ascending (oldest wins ties).
func (db *DB) DequeuePending(limit int) ([]PendingTopic, error) {
	now := time.Now().UnixMilli()
	rows, err := db.Query(`
		SELECT id, topic_type, title, content, source_event_id, priority, status, created_at, expires_at, mentioned_at
		FROM pending_topics
		WHERE status = 'pending' AND expires_at > ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue pending: %w", err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

// MarkTopicMentioned transitions a topic to the terminal mentioned state.
func (db *DB) MarkTopicMentioned(id int64) error {
	now := time.Now().UnixMilli()
	return db.finishTopic(id, "mentioned", &now)
}

// DismissTopic transitions a topic to the terminal dismissed state.
func (db *DB) DismissTopic(id int64) error {
	return db.finishTopic(id, "dismissed", nil)
}

func (db *DB) finishTopic(id int64, status string, mentionedAt *int64) error {
	result, err := db.Exec(`
		UPDATE pending_topics SET status = ?, mentioned_at = COALESCE(?, mentioned_at)
		WHERE id = ? AND status = 'pending'
	`, status, mentionedAt, id)
	if err != nil {
		return fmt.Errorf("mark topic %s: %w", status, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: pending topic %d", ErrNotFound, id)
	}
	return nil
}

// SweepTopics enforces the queue invariants: expire overdue topics, cap
// oversized expiries back to the horizon, evict pending topics beyond the
// maximum (keeping the top-N in dequeue order), and drop terminal rows
// older than the terminal TTL. Returns the number of rows touched.
func (db *DB) SweepTopics(now int64, p TopicPolicy) (int, error) {
	touched := 0

	result, err := db.Exec(`
		UPDATE pending_topics SET status = 'expired' WHERE status = 'pending' AND expires_at <= ?
	`, now)
	if err != nil {
		return touched, fmt.Errorf("expire topics: %w", err)
	}
	n, _ := result.RowsAffected()
	touched += int(n)

	horizon := now + int64(p.MaxHorizonDays)*dayMs
	result, err = db.Exec(`
		UPDATE pending_topics SET expires_at = ? WHERE status = 'pending' AND expires_at > ?
	`, horizon, horizon)
	if err != nil {
		return touched, fmt.Errorf("cap topic expiries: %w", err)
	}
	n, _ = result.RowsAffected()
	touched += int(n)

	result, err = db.Exec(`
		DELETE FROM pending_topics
		WHERE status = 'pending' AND id NOT IN (
			SELECT id FROM pending_topics WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT ?
		)
	`, p.MaxPending)
	if err != nil {
		return touched, fmt.Errorf("evict excess topics: %w", err)
	}
	n, _ = result.RowsAffected()
	touched += int(n)

	terminalCutoff := now - int64(p.TerminalTTLHrs)*int64(time.Hour/time.Millisecond)
	result, err = db.Exec(`
		DELETE FROM pending_topics
		WHERE status IN ('expired', 'dismissed') AND created_at < ?
	`, terminalCutoff)
	if err != nil {
		return touched, fmt.Errorf("drop terminal topics: %w", err)
	}
	n, _ = result.RowsAffected()
	touched += int(n)

	return touched, nil
}

// CountPendingTopics returns the number of topics in the pending state.
func (db *DB) CountPendingTopics() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM pending_topics WHERE status = 'pending'").Scan(&count)
	return count, err
}

func scanTopics(rows *sql.Rows) ([]PendingTopic, error) {
	var topics []PendingTopic
	for rows.Next() {
		var t PendingTopic
		var content, sourceEvent sql.NullString
		var mentionedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.TopicType, &t.Title, &content, &sourceEvent,
			&t.Priority, &t.Status, &t.CreatedAt, &t.ExpiresAt, &mentionedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.Content = content.String
		t.SourceEventID = sourceEvent.String
		if mentionedAt.Valid {
			t.MentionedAt = &mentionedAt.Int64
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
