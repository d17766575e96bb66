package store

import (
	"errors"
	"testing"
	"time"
)

func TestUpsertFact(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	f, err := db.UpsertFact("preferences", "coffee", "black, no sugar", 0.9, "stated")
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	if !f.Active {
		t.Error("new fact should be active")
	}
	if f.Supersedes != nil {
		t.Error("first fact should not supersede anything")
	}

	got, err := db.GetFact("preferences", "coffee")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got == nil || got.Value != "black, no sugar" {
		t.Fatalf("GetFact = %+v, want value round-tripped", got)
	}
}

func TestUpsertFactSupersedes(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	first, err := db.UpsertFact("preferences", "coffee", "black", 0.8, "stated")
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	second, err := db.UpsertFact("preferences", "coffee", "oat milk latte", 0.9, "stated")
	if err != nil {
		t.Fatalf("UpsertFact second: %v", err)
	}

	if second.Supersedes == nil || *second.Supersedes != first.ID {
		t.Errorf("Supersedes = %v, want %d", second.Supersedes, first.ID)
	}

	// Exactly one active row per (category, key).
	var active int
	db.QueryRow("SELECT COUNT(*) FROM facts WHERE category = 'preferences' AND key = 'coffee' AND active = 1").Scan(&active)
	if active != 1 {
		t.Errorf("active rows = %d, want 1", active)
	}
	var total int
	db.QueryRow("SELECT COUNT(*) FROM facts WHERE category = 'preferences' AND key = 'coffee'").Scan(&total)
	if total != 2 {
		t.Errorf("total rows = %d, want 2 (history kept)", total)
	}

	got, _ := db.GetFact("preferences", "coffee")
	if got.Value != "oat milk latte" {
		t.Errorf("active value = %q, want oat milk latte", got.Value)
	}
}

func TestUpsertFactValidation(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, err := db.UpsertFact("", "k", "v", 0.5, "stated"); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("empty category = %v, want ErrConstraintViolation", err)
	}
	if _, err := db.UpsertFact("c", "k", "v", 1.5, "stated"); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("confidence out of range = %v, want ErrConstraintViolation", err)
	}
	if _, err := db.UpsertFact("c", "k", "v", 0.5, "guessed"); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("bad source = %v, want ErrConstraintViolation", err)
	}
}

func TestVerifyFact(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, err := db.UpsertFact("people", "sister_name", "Maya", 0.85, "inferred"); err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}

	if err := db.VerifyFact("people", "sister_name"); err != nil {
		t.Fatalf("VerifyFact: %v", err)
	}
	f, _ := db.GetFact("people", "sister_name")
	if f.Confidence < 0.949 || f.Confidence > 0.951 {
		t.Errorf("Confidence = %.2f, want 0.95", f.Confidence)
	}
	if f.LastVerifiedAt == nil {
		t.Error("LastVerifiedAt should be set")
	}

	// Caps at 1.0.
	if err := db.VerifyFact("people", "sister_name"); err != nil {
		t.Fatalf("VerifyFact: %v", err)
	}
	f, _ = db.GetFact("people", "sister_name")
	if f.Confidence != 1.0 {
		t.Errorf("Confidence = %.2f, want capped at 1.0", f.Confidence)
	}

	if err := db.VerifyFact("people", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("VerifyFact missing = %v, want ErrNotFound", err)
	}
}

func TestListFacts(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.UpsertFact("health", "allergy", "peanuts", 1.0, "configured")
	db.UpsertFact("preferences", "coffee", "black", 0.9, "stated")
	db.UpsertFact("preferences", "music", "jazz, maybe", 0.3, "inferred")

	facts, err := db.ListFacts(0.5)
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2 (low confidence excluded)", len(facts))
	}
	if facts[0].Category != "health" {
		t.Errorf("first category = %q, want health (category ASC)", facts[0].Category)
	}
}

func TestDecayFacts(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	policy := DecayPolicy{
		InferredStalenessDays: 90,
		StatedStalenessDays:   180,
		Step:                  0.2,
		Floor:                 0.1,
		DeactivateBelow:       0.3,
	}
	now := time.Now().UnixMilli()

	// Stale inferred fact: decays.
	db.UpsertFact("preferences", "music", "jazz", 0.8, "inferred")
	// Configured fact: never decays.
	db.UpsertFact("health", "allergy", "peanuts", 1.0, "configured")
	// Recently verified inferred fact: exempt this pass.
	db.UpsertFact("people", "sister_name", "Maya", 0.8, "inferred")
	db.VerifyFact("people", "sister_name")

	// 50 days out: the never-verified fact is stale (NULL counts as stale),
	// the just-verified one is inside its 90-day window.
	future := now + 50*dayMs
	decayed, deactivated, err := db.DecayFacts(future, policy)
	if err != nil {
		t.Fatalf("DecayFacts: %v", err)
	}
	if decayed != 1 {
		t.Errorf("decayed = %d, want 1", decayed)
	}
	if deactivated != 0 {
		t.Errorf("deactivated = %d, want 0", deactivated)
	}

	music, _ := db.GetFact("preferences", "music")
	if music.Confidence < 0.599 || music.Confidence > 0.601 {
		t.Errorf("music confidence = %.2f, want 0.60", music.Confidence)
	}
	allergy, _ := db.GetFact("health", "allergy")
	if allergy.Confidence != 1.0 {
		t.Errorf("configured fact decayed to %.2f", allergy.Confidence)
	}
}

func TestDecayFactsDeactivates(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	policy := DecayPolicy{InferredStalenessDays: 90, StatedStalenessDays: 180, Step: 0.2, Floor: 0.1, DeactivateBelow: 0.3}
	db.UpsertFact("preferences", "music", "jazz", 0.4, "inferred")

	future := time.Now().UnixMilli() + 100*dayMs
	_, deactivated, err := db.DecayFacts(future, policy)
	if err != nil {
		t.Fatalf("DecayFacts: %v", err)
	}
	if deactivated != 1 {
		t.Errorf("deactivated = %d, want 1 (0.4 - 0.2 < 0.3)", deactivated)
	}

	f, _ := db.GetFact("preferences", "music")
	if f != nil {
		t.Errorf("deactivated fact still active: %+v", f)
	}
}

func TestDecayFactsFloor(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	policy := DecayPolicy{InferredStalenessDays: 90, StatedStalenessDays: 180, Step: 0.2, Floor: 0.1, DeactivateBelow: 0.05}
	db.UpsertFact("preferences", "music", "jazz", 0.15, "inferred")

	future := time.Now().UnixMilli() + 100*dayMs
	if _, _, err := db.DecayFacts(future, policy); err != nil {
		t.Fatalf("DecayFacts: %v", err)
	}

	f, _ := db.GetFact("preferences", "music")
	if f == nil {
		t.Fatal("fact above DeactivateBelow should stay active")
	}
	if f.Confidence < 0.099 || f.Confidence > 0.101 {
		t.Errorf("confidence = %.2f, want floored at 0.10", f.Confidence)
	}
}
