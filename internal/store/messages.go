package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Message is a single entry in the conversation ledger. Immutable once
// written except for the processed/escalated flags.
type Message struct {
	ID          int64
	MessageID   string // external id, unique
	Direction   string // "inbound" or "outbound"
	Channel     string
	ContentKind string // "text", "image", ...
	Body        string
	MediaRef    string
	TS          int64 // epoch ms
	Processed   bool
	Escalated   bool
	CreatedAt   int64
}

// AppendMessage inserts a message into the ledger. A message_id that has
// been seen before fails with ErrDuplicateMessage. The body is encrypted
// at rest.
func (db *DB) AppendMessage(m *Message) error {
	if m.MessageID == "" {
		return fmt.Errorf("%w: message_id required", ErrConstraintViolation)
	}
	if m.Direction != "inbound" && m.Direction != "outbound" {
		return fmt.Errorf("%w: direction must be inbound or outbound", ErrConstraintViolation)
	}
	if m.ContentKind == "" {
		m.ContentKind = "text"
	}

	now := time.Now().UnixMilli()
	if m.TS == 0 {
		m.TS = now
	}

	body, err := db.encrypt(m.Body)
	if err != nil {
		return fmt.Errorf("encrypt message body: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO messages (message_id, direction, channel, content_kind, body, media_ref, ts, processed, escalated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MessageID, m.Direction, m.Channel, m.ContentKind, body, m.MediaRef, m.TS, boolInt(m.Processed), boolInt(m.Escalated), now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, m.MessageID)
		}
		return fmt.Errorf("append message: %w", err)
	}

	id, _ := result.LastInsertId()
	m.ID = id
	m.CreatedAt = now

	if err := db.TouchInteraction(m.TS); err != nil {
		return fmt.Errorf("touch interaction: %w", err)
	}
	return nil
}

// RecentMessages returns up to n messages ordered newest first. A non-empty
// contentKind restricts the result to that kind.
func (db *DB) RecentMessages(n int, contentKind string) ([]Message, error) {
	query := `
		SELECT id, message_id, direction, channel, content_kind, body, media_ref, ts, processed, escalated, created_at
		FROM messages`
	args := []any{}
	if contentKind != "" {
		query += " WHERE content_kind = ?"
		args = append(args, contentKind)
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, n)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return db.scanMessages(rows)
}

// MessagesBetween returns messages with start < ts <= end, oldest first.
// Used by the consolidator; the scan is bounded by the period.
func (db *DB) MessagesBetween(start, end int64) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, message_id, direction, channel, content_kind, body, media_ref, ts, processed, escalated, created_at
		FROM messages WHERE ts > ? AND ts <= ? ORDER BY ts ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("messages between: %w", err)
	}
	defer rows.Close()
	return db.scanMessages(rows)
}

// MarkProcessed sets the processed flag on a message.
func (db *DB) MarkProcessed(messageID string) error {
	return db.setMessageFlag(messageID, "processed")
}

// MarkEscalated sets the escalated flag on a message.
func (db *DB) MarkEscalated(messageID string) error {
	return db.setMessageFlag(messageID, "escalated")
}

func (db *DB) setMessageFlag(messageID, column string) error {
	result, err := db.Exec("UPDATE messages SET "+column+" = 1 WHERE message_id = ?", messageID)
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// PruneMessages deletes all but the newest keep messages and returns the
// number removed. Run by the maintenance scheduler after consolidation.
func (db *DB) PruneMessages(keep int) (int, error) {
	result, err := db.Exec(`
		DELETE FROM messages WHERE id NOT IN (
			SELECT id FROM messages ORDER BY ts DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountMessages returns the total number of ledger rows.
func (db *DB) CountMessages() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

func (db *DB) scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		var body, mediaRef sql.NullString
		var processed, escalated int
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Direction, &m.Channel, &m.ContentKind,
			&body, &mediaRef, &m.TS, &processed, &escalated, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		plain, err := db.decrypt(body.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt message %s: %w", m.MessageID, err)
		}
		m.Body = plain
		m.MediaRef = mediaRef.String
		m.Processed = processed != 0
		m.Escalated = escalated != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
