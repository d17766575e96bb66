package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "system_state + preferences: operational counters and key-value config",
		SQL: `
CREATE TABLE system_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE preferences (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "messages: append-only conversation ledger",
		SQL: `
CREATE TABLE messages (
    id           INTEGER PRIMARY KEY,
    message_id   TEXT NOT NULL UNIQUE,
    direction    TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
    channel      TEXT NOT NULL,
    content_kind TEXT NOT NULL DEFAULT 'text',
    body         TEXT,
    media_ref    TEXT,
    ts           INTEGER NOT NULL,
    processed    INTEGER NOT NULL DEFAULT 0,
    escalated    INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);

CREATE INDEX idx_messages_ts      ON messages(ts DESC);
CREATE INDEX idx_messages_channel ON messages(channel, ts DESC);
`,
	},
	{
		Version:     3,
		Description: "facts: keyed facts with confidence, source, and supersede chain",
		SQL: `
CREATE TABLE facts (
    id               INTEGER PRIMARY KEY,
    category         TEXT NOT NULL,
    key              TEXT NOT NULL,
    value            TEXT NOT NULL,
    confidence       REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
    source           TEXT NOT NULL CHECK (source IN ('configured', 'stated', 'inferred')),
    learned_at       INTEGER NOT NULL,
    last_verified_at INTEGER,
    updated_at       INTEGER NOT NULL,
    supersedes       INTEGER REFERENCES facts(id),
    active           INTEGER NOT NULL DEFAULT 1
);

-- At most one active fact per (category, key); storage-layer invariant.
CREATE UNIQUE INDEX idx_facts_active_key ON facts(category, key) WHERE active = 1;
CREATE INDEX idx_facts_category ON facts(category, confidence DESC);
`,
	},
	{
		Version:     4,
		Description: "pending_topics: bounded proactive-topic queue with mandatory expiry",
		SQL: `
CREATE TABLE pending_topics (
    id              INTEGER PRIMARY KEY,
    topic_type      TEXT NOT NULL,
    title           TEXT NOT NULL,
    content         TEXT,
    source_event_id TEXT,
    priority        INTEGER NOT NULL DEFAULT 50 CHECK (priority >= 0 AND priority <= 100),
    status          TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'mentioned', 'expired', 'dismissed')),
    created_at      INTEGER NOT NULL,
    expires_at      INTEGER NOT NULL,
    mentioned_at    INTEGER
);

CREATE INDEX idx_topics_pending ON pending_topics(status, priority DESC, created_at ASC);
CREATE INDEX idx_topics_expires ON pending_topics(expires_at);
`,
	},
	{
		Version:     5,
		Description: "events: immutable event log with significance-based retention",
		SQL: `
CREATE TABLE events (
    id           INTEGER PRIMARY KEY,
    event_id     TEXT NOT NULL UNIQUE,
    source       TEXT NOT NULL,
    event_type   TEXT NOT NULL,
    significance TEXT NOT NULL CHECK (significance IN ('routine', 'significant', 'critical')),
    title        TEXT NOT NULL,
    description  TEXT,
    data         TEXT,
    mentioned    INTEGER NOT NULL DEFAULT 0,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    occurred_at  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    expires_at   INTEGER
);

CREATE INDEX idx_events_occurred    ON events(occurred_at DESC);
CREATE INDEX idx_events_unmentioned ON events(mentioned, occurred_at DESC);
`,
	},
	{
		Version:     6,
		Description: "device_states: one row per device, alert and flap bookkeeping",
		SQL: `
CREATE TABLE device_states (
    id                       INTEGER PRIMARY KEY,
    device_id                TEXT NOT NULL UNIQUE,
    device_type              TEXT NOT NULL,
    location                 TEXT,
    current_state            TEXT NOT NULL,
    state_changed_at         INTEGER NOT NULL,
    alerts_sent_this_state   INTEGER NOT NULL DEFAULT 0,
    last_alert_at            INTEGER,
    acknowledged             INTEGER NOT NULL DEFAULT 0,
    acknowledged_at          INTEGER,
    transitions_this_hour    INTEGER NOT NULL DEFAULT 0,
    hour_window_start        INTEGER NOT NULL,
    malfunction_warning_sent INTEGER NOT NULL DEFAULT 0,
    updated_at               INTEGER NOT NULL
);
`,
	},
	{
		Version:     7,
		Description: "replay_nonces: short-lived nonce set, uniqueness enforced by the store",
		SQL: `
CREATE TABLE replay_nonces (
    nonce       TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    received_at INTEGER NOT NULL,
    expires_at  INTEGER NOT NULL
);

CREATE INDEX idx_nonces_expires ON replay_nonces(expires_at);
`,
	},
	{
		Version:     8,
		Description: "context_summaries: validated long-term summaries, immutable after insert",
		SQL: `
CREATE TABLE context_summaries (
    id            INTEGER PRIMARY KEY,
    summary_type  TEXT NOT NULL,
    period_start  INTEGER NOT NULL,
    period_end    INTEGER NOT NULL,
    summary       TEXT NOT NULL,
    key_points    TEXT,
    topics        TEXT,
    validated     INTEGER NOT NULL DEFAULT 0,
    warnings      TEXT,
    message_count INTEGER NOT NULL DEFAULT 0,
    event_count   INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL
);

CREATE INDEX idx_summaries_period ON context_summaries(summary_type, period_end DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
