package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenRequiresMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.db")
	_, err := Open(path, "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Open without key = %v, want ErrStoreUnavailable", err)
	}
}

func TestOpenWrongKeyRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.db")

	db, err := Open(path, "the-right-key")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.AppendMessage(&Message{MessageID: "m1", Direction: "inbound", Channel: "signal", Body: "secret"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	db.Close()

	_, err = Open(path, "the-wrong-key")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Open with wrong key = %v, want ErrStoreUnavailable", err)
	}

	// The right key still works.
	db2, err := Open(path, "the-right-key")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	msgs, err := db2.RecentMessages(1, "")
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "secret" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSchemaVersion(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
