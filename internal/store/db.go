package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the hearth SQLite database.
// Protected columns are encrypted with a key derived from the master key;
// a store opened without the right key refuses to operate.
type DB struct {
	*sql.DB
	Path   string
	cipher *cipher
}

// DefaultDBPath returns the default database path: ~/.hearth/hearth.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hearth", "hearth.db"), nil
}

// Open opens (or creates) the SQLite database at the given path, configures
// pragmas, runs migrations, and unlocks the column cipher. A missing or
// wrong master key fails with ErrStoreUnavailable.
func Open(path, masterKey string) (*DB, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("%w: no master key (set HEARTH_MASTER_KEY)", ErrStoreUnavailable)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.setup(masterKey); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing, unlocked with a
// fixed test key.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}

	db := &DB{DB: sqlDB, Path: ":memory:"}
	if err := db.setup("hearth-test-key"); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) setup(masterKey string) error {
	if err := db.configurePragmas(); err != nil {
		return err
	}
	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return db.unlock(masterKey)
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// System-state keys used by the cipher bootstrap. The salt is not secret;
// the canary proves the derived key matches the one the rows were sealed
// under before any row is touched.
const (
	saltKey   = "kdf_salt"
	canaryKey = "cipher_check"
	canary    = "hearth-canary-v1"
)

func (db *DB) unlock(masterKey string) error {
	saltB64, err := db.GetSystemState(saltKey)
	if err != nil {
		return fmt.Errorf("load kdf salt: %w", err)
	}

	var salt []byte
	if saltB64 == "" {
		salt, err = newSalt()
		if err != nil {
			return err
		}
		if err := db.SetSystemState(saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return fmt.Errorf("store kdf salt: %w", err)
		}
	} else {
		salt, err = base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return fmt.Errorf("decode kdf salt: %w", err)
		}
	}

	c, err := newCipher(masterKey, salt)
	if err != nil {
		return err
	}

	check, err := db.GetSystemState(canaryKey)
	if err != nil {
		return fmt.Errorf("load cipher check: %w", err)
	}
	if check == "" {
		sealed, err := c.seal(canary)
		if err != nil {
			return err
		}
		if err := db.SetSystemState(canaryKey, sealed); err != nil {
			return fmt.Errorf("store cipher check: %w", err)
		}
	} else if got, err := c.open(check); err != nil || got != canary {
		return fmt.Errorf("%w: master key does not match this store", ErrStoreUnavailable)
	}

	db.cipher = c
	return nil
}

// encrypt seals a plaintext column value for storage.
func (db *DB) encrypt(plaintext string) (string, error) {
	return db.cipher.seal(plaintext)
}

// decrypt opens a stored column value.
func (db *DB) decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	return db.cipher.open(envelope)
}
