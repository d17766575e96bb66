package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
)

// Protected columns, re-sealed by Rewrap.
var encryptedColumns = []struct {
	table  string
	column string
}{
	{"messages", "body"},
	{"facts", "value"},
	{"events", "description"},
	{"context_summaries", "summary"},
}

// Rewrap re-encrypts every protected column under a key derived from
// newMasterKey and a fresh salt, inside one transaction. On commit the live
// cipher is swapped, so the store keeps working without a reopen. Returns
// the number of rows re-sealed.
func (db *DB) Rewrap(newMasterKey string) (int, error) {
	if newMasterKey == "" {
		return 0, fmt.Errorf("%w: new master key required", ErrConstraintViolation)
	}

	salt, err := newSalt()
	if err != nil {
		return 0, err
	}
	next, err := newCipher(newMasterKey, salt)
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin rewrap: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, c := range encryptedColumns {
		n, err := rewrapColumn(tx, db.cipher, next, c.table, c.column)
		if err != nil {
			return 0, err
		}
		total += n
	}

	sealedCanary, err := next.seal(canary)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		UPDATE system_state SET value = ? WHERE key = ?
	`, base64.StdEncoding.EncodeToString(salt), saltKey); err != nil {
		return 0, fmt.Errorf("store new salt: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE system_state SET value = ? WHERE key = ?
	`, sealedCanary, canaryKey); err != nil {
		return 0, fmt.Errorf("store new cipher check: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rewrap: %w", err)
	}

	db.cipher = next
	return total, nil
}

func rewrapColumn(tx *sql.Tx, old, next *cipher, table, column string) (int, error) {
	rows, err := tx.Query("SELECT id, " + column + " FROM " + table + " WHERE " + column + " IS NOT NULL AND " + column + " != ''")
	if err != nil {
		return 0, fmt.Errorf("rewrap read %s.%s: %w", table, column, err)
	}

	type sealed struct {
		id  int64
		env string
	}
	var resealed []sealed
	for rows.Next() {
		var id int64
		var env string
		if err := rows.Scan(&id, &env); err != nil {
			rows.Close()
			return 0, fmt.Errorf("rewrap scan %s.%s: %w", table, column, err)
		}
		plain, err := old.open(env)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("rewrap open %s.%s row %d: %w", table, column, id, err)
		}
		env, err = next.seal(plain)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("rewrap seal %s.%s row %d: %w", table, column, id, err)
		}
		resealed = append(resealed, sealed{id, env})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, s := range resealed {
		if _, err := tx.Exec("UPDATE "+table+" SET "+column+" = ? WHERE id = ?", s.env, s.id); err != nil {
			return 0, fmt.Errorf("rewrap write %s.%s row %d: %w", table, column, s.id, err)
		}
	}
	return len(resealed), nil
}
