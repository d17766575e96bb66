package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// System-state keys owned by the ledger and the scheduler. Counters that
// used to be ambient globals live here as explicit rows.
const (
	stateLastInteraction  = "last_interaction_at"
	stateHourWindowStart  = "messages_hour_window_start"
	stateMessagesThisHour = "messages_sent_this_hour"
)

// GetSystemState returns the value for a system-state key, or "" if unset.
func (db *DB) GetSystemState(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get system state %s: %w", key, err)
	}
	return value, nil
}

// SetSystemState upserts a system-state key.
func (db *DB) SetSystemState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("set system state %s: %w", key, err)
	}
	return nil
}

// GetPreference returns a preference value, or "" if unset.
func (db *DB) GetPreference(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

// SetPreference upserts a preference.
func (db *DB) SetPreference(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// TouchInteraction records a message send/receive against the hourly
// counter and the last-interaction timestamp. The counter resets when the
// hour window rolls over. Read and increment happen in one transaction so
// concurrent touches cannot lose counts.
func (db *DB) TouchInteraction(now int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin interaction touch: %w", err)
	}
	defer tx.Rollback()

	set := func(key, value string) error {
		_, err := tx.Exec(`
			INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now)
		if err != nil {
			return fmt.Errorf("set system state %s: %w", key, err)
		}
		return nil
	}
	get := func(key string) (string, error) {
		var value string
		err := tx.QueryRow("SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
		if err == sql.ErrNoRows {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("get system state %s: %w", key, err)
		}
		return value, nil
	}

	windowStr, err := get(stateHourWindowStart)
	if err != nil {
		return err
	}
	windowStart, _ := strconv.ParseInt(windowStr, 10, 64)

	count := 0
	if windowStart != 0 && now-windowStart < hourMs {
		countStr, err := get(stateMessagesThisHour)
		if err != nil {
			return err
		}
		count, _ = strconv.Atoi(countStr)
	} else if err := set(stateHourWindowStart, strconv.FormatInt(now, 10)); err != nil {
		return err
	}

	if err := set(stateMessagesThisHour, strconv.Itoa(count+1)); err != nil {
		return err
	}
	if err := set(stateLastInteraction, strconv.FormatInt(now, 10)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit interaction touch: %w", err)
	}
	return nil
}

// MessagesThisHour returns the current hourly message counter.
func (db *DB) MessagesThisHour(now int64) (int, error) {
	windowStr, err := db.GetSystemState(stateHourWindowStart)
	if err != nil {
		return 0, err
	}
	windowStart, _ := strconv.ParseInt(windowStr, 10, 64)

	if windowStart == 0 || now-windowStart >= hourMs {
		return 0, nil
	}

	countStr, err := db.GetSystemState(stateMessagesThisHour)
	if err != nil {
		return 0, err
	}
	count, _ := strconv.Atoi(countStr)
	return count, nil
}
