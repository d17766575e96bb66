package store

import (
	"errors"
	"strings"
)

// Sentinel errors for the failure taxonomy. Callers match with errors.Is.
var (
	// ErrDuplicateMessage is returned when a message_id has already been
	// ingested. Safe to treat as success for idempotent ingestion.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrReplayDetected is returned when a nonce has been seen before
	// within the replay window. The request must be rejected.
	ErrReplayDetected = errors.New("replay detected")

	// ErrStoreUnavailable is returned when the store cannot be opened,
	// typically because the master key is missing or wrong. The engine
	// refuses to run rather than operate unencrypted.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConstraintViolation is returned for rows that fail a mandatory
	// field check at the API boundary, e.g. a topic with no expiry.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrNotFound is returned by operations that require an existing row.
	ErrNotFound = errors.New("not found")
)

// isUniqueViolation reports whether err is a SQLite unique-index failure.
// modernc.org/sqlite surfaces these as textual constraint errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
