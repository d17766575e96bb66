package store

import (
	"fmt"
)

// PurgeOptions selects what a purge removes. All fields default to false:
// a zero PurgeOptions purges nothing.
type PurgeOptions struct {
	Contexts     bool   // context summaries
	Facts        bool   // fact rows, including superseded history
	Knowledge    bool   // events and pending topics
	Keys         bool   // replay nonces
	Conversation string // when set, messages for this channel only
	AllMessages  bool   // every ledger row
}

// PurgeResult reports rows removed per table.
type PurgeResult struct {
	Summaries int
	Facts     int
	Events    int
	Topics    int
	Nonces    int
	Messages  int
}

// Purge deletes the selected categories in one transaction. Nothing is
// removed unless explicitly requested.
func (db *DB) Purge(opts PurgeOptions) (*PurgeResult, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	res := &PurgeResult{}
	del := func(query string, args ...any) (int, error) {
		result, err := tx.Exec(query, args...)
		if err != nil {
			return 0, err
		}
		n, _ := result.RowsAffected()
		return int(n), nil
	}

	if opts.Contexts {
		if res.Summaries, err = del("DELETE FROM context_summaries"); err != nil {
			return nil, fmt.Errorf("purge summaries: %w", err)
		}
	}
	if opts.Facts {
		if res.Facts, err = del("DELETE FROM facts"); err != nil {
			return nil, fmt.Errorf("purge facts: %w", err)
		}
	}
	if opts.Knowledge {
		if res.Events, err = del("DELETE FROM events"); err != nil {
			return nil, fmt.Errorf("purge events: %w", err)
		}
		if res.Topics, err = del("DELETE FROM pending_topics"); err != nil {
			return nil, fmt.Errorf("purge topics: %w", err)
		}
	}
	if opts.Keys {
		if res.Nonces, err = del("DELETE FROM replay_nonces"); err != nil {
			return nil, fmt.Errorf("purge nonces: %w", err)
		}
	}
	if opts.AllMessages {
		if res.Messages, err = del("DELETE FROM messages"); err != nil {
			return nil, fmt.Errorf("purge messages: %w", err)
		}
	} else if opts.Conversation != "" {
		if res.Messages, err = del("DELETE FROM messages WHERE channel = ?", opts.Conversation); err != nil {
			return nil, fmt.Errorf("purge conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purge: %w", err)
	}
	return res, nil
}
