package store

import (
	"fmt"
	"time"
)

// CheckAndRecordNonce accepts a nonce exactly once. A nonce seen before —
// even one already expired but not yet swept — fails with ErrReplayDetected.
// Uniqueness rides on the primary key, so concurrent callers race safely.
func (db *DB) CheckAndRecordNonce(nonce, source string, now int64, ttl time.Duration) error {
	if nonce == "" {
		return fmt.Errorf("%w: nonce required", ErrConstraintViolation)
	}

	expires := now + ttl.Milliseconds()
	_, err := db.Exec(`
		INSERT INTO replay_nonces (nonce, source, received_at, expires_at) VALUES (?, ?, ?, ?)
	`, nonce, source, now, expires)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: nonce %s", ErrReplayDetected, nonce)
		}
		return fmt.Errorf("record nonce: %w", err)
	}
	return nil
}

// SweepNonces deletes expired nonces and returns the number removed.
func (db *DB) SweepNonces(now int64) (int, error) {
	result, err := db.Exec("DELETE FROM replay_nonces WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("sweep nonces: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountNonces returns the number of live nonce rows.
func (db *DB) CountNonces() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM replay_nonces").Scan(&count)
	return count, err
}
