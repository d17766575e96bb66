package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Fact is a keyed piece of long-term knowledge. At most one fact per
// (category, key) is active; superseded rows are kept inactive with a
// pointer to preserve history.
type Fact struct {
	ID             int64
	Category       string
	Key            string
	Value          string
	Confidence     float64
	Source         string // "configured", "stated", "inferred"
	LearnedAt      int64
	LastVerifiedAt *int64
	UpdatedAt      int64
	Supersedes     *int64
	Active         bool
}

// DecayPolicy holds the knobs for scheduled fact decay.
type DecayPolicy struct {
	InferredStalenessDays int
	StatedStalenessDays   int
	Step                  float64 // confidence reduction per decay pass
	Floor                 float64 // confidence never decays below this
	DeactivateBelow       float64 // active facts under this are deactivated
}

// UpsertFact stores a fact. If an active fact with the same (category, key)
// exists it is superseded (marked inactive) and the new row inserted, both
// inside one transaction.
func (db *DB) UpsertFact(category, key, value string, confidence float64, source string) (*Fact, error) {
	if category == "" || key == "" {
		return nil, fmt.Errorf("%w: category and key required", ErrConstraintViolation)
	}
	switch source {
	case "configured", "stated", "inferred":
	default:
		return nil, fmt.Errorf("%w: unknown fact source %q", ErrConstraintViolation, source)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.2f out of range", ErrConstraintViolation, confidence)
	}

	enc, err := db.encrypt(value)
	if err != nil {
		return nil, fmt.Errorf("encrypt fact value: %w", err)
	}

	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin upsert fact: %w", err)
	}
	defer tx.Rollback()

	var prevID sql.NullInt64
	err = tx.QueryRow(`
		SELECT id FROM facts WHERE category = ? AND key = ? AND active = 1
	`, category, key).Scan(&prevID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("find active fact: %w", err)
	}

	var supersedes *int64
	if prevID.Valid {
		if _, err := tx.Exec(`
			UPDATE facts SET active = 0, updated_at = ? WHERE id = ?
		`, now, prevID.Int64); err != nil {
			return nil, fmt.Errorf("supersede fact: %w", err)
		}
		supersedes = &prevID.Int64
	}

	result, err := tx.Exec(`
		INSERT INTO facts (category, key, value, confidence, source, learned_at, updated_at, supersedes, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, category, key, enc, confidence, source, now, now, supersedes)
	if err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert fact: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Fact{
		ID:         id,
		Category:   category,
		Key:        key,
		Value:      value,
		Confidence: confidence,
		Source:     source,
		LearnedAt:  now,
		UpdatedAt:  now,
		Supersedes: supersedes,
		Active:     true,
	}, nil
}

// VerifyFact records a re-statement of an active fact: confidence rises by
// 0.1 (capped at 1.0) and last_verified_at is set to now.
func (db *DB) VerifyFact(category, key string) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE facts
		SET confidence = MIN(1.0, confidence + 0.1), last_verified_at = ?, updated_at = ?
		WHERE category = ? AND key = ? AND active = 1
	`, now, now, category, key)
	if err != nil {
		return fmt.Errorf("verify fact: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: fact %s/%s", ErrNotFound, category, key)
	}
	return nil
}

// GetFact returns the active fact for (category, key), or nil.
func (db *DB) GetFact(category, key string) (*Fact, error) {
	row := db.QueryRow(`
		SELECT id, category, key, value, confidence, source, learned_at, last_verified_at, updated_at, supersedes, active
		FROM facts WHERE category = ? AND key = ? AND active = 1
	`, category, key)
	f, err := db.scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// ListFacts returns active facts with confidence >= minConfidence, ordered
// by category then confidence descending, ready for context assembly.
func (db *DB) ListFacts(minConfidence float64) ([]Fact, error) {
	rows, err := db.Query(`
		SELECT id, category, key, value, confidence, source, learned_at, last_verified_at, updated_at, supersedes, active
		FROM facts WHERE active = 1 AND confidence >= ?
		ORDER BY category ASC, confidence DESC
	`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		f, err := db.scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, *f)
	}
	return facts, rows.Err()
}

// DecayFacts applies the scheduled confidence decay. Inferred facts whose
// verification is absent or older than the staleness window lose Step
// confidence (floored); stated facts use the slower window; configured
// facts are exempt. Active facts left below DeactivateBelow are
// deactivated. Returns (decayed, deactivated).
func (db *DB) DecayFacts(now int64, p DecayPolicy) (int, int, error) {
	inferredCutoff := now - int64(p.InferredStalenessDays)*dayMs
	statedCutoff := now - int64(p.StatedStalenessDays)*dayMs

	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin decay: %w", err)
	}
	defer tx.Rollback()

	decayOne := func(source string, cutoff int64) (int, error) {
		result, err := tx.Exec(`
			UPDATE facts
			SET confidence = MAX(?, confidence - ?), updated_at = ?
			WHERE active = 1 AND source = ?
			  AND (last_verified_at IS NULL OR last_verified_at < ?)
			  AND confidence > ?
		`, p.Floor, p.Step, now, source, cutoff, p.Floor)
		if err != nil {
			return 0, fmt.Errorf("decay %s facts: %w", source, err)
		}
		n, _ := result.RowsAffected()
		return int(n), nil
	}

	decayed := 0
	n, err := decayOne("inferred", inferredCutoff)
	if err != nil {
		return 0, 0, err
	}
	decayed += n
	n, err = decayOne("stated", statedCutoff)
	if err != nil {
		return 0, 0, err
	}
	decayed += n

	result, err := tx.Exec(`
		UPDATE facts SET active = 0, updated_at = ?
		WHERE active = 1 AND source != 'configured' AND confidence < ?
	`, now, p.DeactivateBelow)
	if err != nil {
		return 0, 0, fmt.Errorf("deactivate decayed facts: %w", err)
	}
	deactivated, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit decay: %w", err)
	}
	return decayed, int(deactivated), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var enc string
	var lastVerified, supersedes sql.NullInt64
	var active int
	err := row.Scan(&f.ID, &f.Category, &f.Key, &enc, &f.Confidence, &f.Source,
		&f.LearnedAt, &lastVerified, &f.UpdatedAt, &supersedes, &active)
	if err != nil {
		return nil, err
	}
	value, err := db.decrypt(enc)
	if err != nil {
		return nil, fmt.Errorf("decrypt fact %s/%s: %w", f.Category, f.Key, err)
	}
	f.Value = value
	f.Active = active != 0
	if lastVerified.Valid {
		f.LastVerifiedAt = &lastVerified.Int64
	}
	if supersedes.Valid {
		f.Supersedes = &supersedes.Int64
	}
	return &f, nil
}
