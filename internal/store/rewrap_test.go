package store

import (
	"path/filepath"
	"testing"
)

func TestRewrap(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	seedAllTables(t, db)

	before, _ := db.RecentMessages(10, "")

	n, err := db.Rewrap("a-brand-new-key")
	if err != nil {
		t.Fatalf("Rewrap: %v", err)
	}
	// One message body per seeded message, one fact value, one event
	// description is empty (skipped), one summary.
	if n != 4 {
		t.Errorf("resealed %d rows, want 4", n)
	}

	// Live handle keeps working under the new cipher.
	after, err := db.RecentMessages(10, "")
	if err != nil {
		t.Fatalf("RecentMessages after rewrap: %v", err)
	}
	if len(after) != len(before) || after[0].Body != before[0].Body {
		t.Errorf("message bodies changed across rewrap")
	}
	f, err := db.GetFact("preferences", "coffee")
	if err != nil {
		t.Fatalf("GetFact after rewrap: %v", err)
	}
	if f.Value != "black" {
		t.Errorf("fact value = %q after rewrap, want black", f.Value)
	}
}

func TestRewrapPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.db")

	db, err := Open(path, "old-key")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.AppendMessage(&Message{MessageID: "m1", Direction: "inbound", Channel: "signal", Body: "remember me"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := db.Rewrap("new-key"); err != nil {
		t.Fatalf("Rewrap: %v", err)
	}
	db.Close()

	// Old key must no longer open the store.
	if _, err := Open(path, "old-key"); err == nil {
		t.Fatal("old key still opens the store after rewrap")
	}

	db2, err := Open(path, "new-key")
	if err != nil {
		t.Fatalf("Open with new key: %v", err)
	}
	defer db2.Close()

	msgs, err := db2.RecentMessages(1, "")
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "remember me" {
		t.Errorf("messages after reopen = %+v", msgs)
	}
}

func TestRewrapRequiresKey(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, err := db.Rewrap(""); err == nil {
		t.Error("empty new key should be rejected")
	}
}
