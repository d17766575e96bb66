package store

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func testTopicPolicy() TopicPolicy {
	return TopicPolicy{MaxPending: 20, MaxHorizonDays: 7, TerminalTTLHrs: 24}
}

func TestEnqueueTopic(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	topic := &PendingTopic{TopicType: "event_followup", Title: "ask about the trip", Priority: 70, ExpiresAt: now + dayMs}
	if err := db.EnqueueTopic(topic, testTopicPolicy()); err != nil {
		t.Fatalf("EnqueueTopic: %v", err)
	}
	if topic.Status != "pending" {
		t.Errorf("Status = %q, want pending", topic.Status)
	}
}

func TestEnqueueTopicRequiresExpiry(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	topic := &PendingTopic{TopicType: "event_followup", Title: "no expiry"}
	err = db.EnqueueTopic(topic, testTopicPolicy())
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("missing expiry error = %v, want ErrConstraintViolation", err)
	}
}

func TestEnqueueTopicCapsHorizon(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	topic := &PendingTopic{TopicType: "reminder", Title: "far future", Priority: 90, ExpiresAt: now + 365*dayMs}
	if err := db.EnqueueTopic(topic, testTopicPolicy()); err != nil {
		t.Fatalf("EnqueueTopic: %v", err)
	}

	horizon := now + 7*dayMs
	if topic.ExpiresAt > horizon+1000 {
		t.Errorf("ExpiresAt = %d, want capped near %d", topic.ExpiresAt, horizon)
	}
}

func TestDequeuePendingOrder(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	policy := testTopicPolicy()
	db.EnqueueTopic(&PendingTopic{TopicType: "t", Title: "low", Priority: 10, ExpiresAt: now + dayMs}, policy)
	db.EnqueueTopic(&PendingTopic{TopicType: "t", Title: "high", Priority: 90, ExpiresAt: now + dayMs}, policy)
	db.EnqueueTopic(&PendingTopic{TopicType: "t", Title: "mid", Priority: 50, ExpiresAt: now + dayMs}, policy)

	topics, err := db.DequeuePending(10)
	if err != nil {
		t.Fatalf("DequeuePending: %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3", len(topics))
	}
	if topics[0].Title != "high" || topics[1].Title != "mid" || topics[2].Title != "low" {
		t.Errorf("order = %s, %s, %s", topics[0].Title, topics[1].Title, topics[2].Title)
	}
}

func TestDequeueSkipsExpired(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	policy := testTopicPolicy()
	expired := &PendingTopic{TopicType: "t", Title: "stale", Priority: 99, ExpiresAt: now + dayMs}
	db.EnqueueTopic(expired, policy)
	// Force the expiry into the past; enqueue would cap but not backdate.
	db.Exec("UPDATE pending_topics SET expires_at = ? WHERE id = ?", now-1000, expired.ID)
	db.EnqueueTopic(&PendingTopic{TopicType: "t", Title: "fresh", Priority: 10, ExpiresAt: now + dayMs}, policy)

	topics, err := db.DequeuePending(10)
	if err != nil {
		t.Fatalf("DequeuePending: %v", err)
	}
	if len(topics) != 1 || topics[0].Title != "fresh" {
		t.Fatalf("got %d topics, want just the fresh one", len(topics))
	}
}

func TestTopicTerminalTransitions(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	policy := testTopicPolicy()
	topic := &PendingTopic{TopicType: "t", Title: "once", Priority: 50, ExpiresAt: now + dayMs}
	db.EnqueueTopic(topic, policy)

	if err := db.MarkTopicMentioned(topic.ID); err != nil {
		t.Fatalf("MarkTopicMentioned: %v", err)
	}
	// Terminal states are final.
	if err := db.DismissTopic(topic.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("dismiss after mention = %v, want ErrNotFound", err)
	}
	if err := db.MarkTopicMentioned(topic.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double mention = %v, want ErrNotFound", err)
	}
}

func TestSweepTopics(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	policy := TopicPolicy{MaxPending: 3, MaxHorizonDays: 7, TerminalTTLHrs: 24}

	// Overfill the queue; priorities 1..6.
	for i := 1; i <= 6; i++ {
		topic := &PendingTopic{TopicType: "t", Title: fmt.Sprintf("topic-%d", i), Priority: i * 10, ExpiresAt: now + dayMs}
		if err := db.EnqueueTopic(topic, policy); err != nil {
			t.Fatalf("EnqueueTopic: %v", err)
		}
	}

	touched, err := db.SweepTopics(now, policy)
	if err != nil {
		t.Fatalf("SweepTopics: %v", err)
	}
	if touched != 3 {
		t.Errorf("touched = %d, want 3 evictions", touched)
	}

	topics, _ := db.DequeuePending(10)
	if len(topics) != 3 {
		t.Fatalf("pending after sweep = %d, want 3", len(topics))
	}
	// Highest priorities survive.
	if topics[0].Priority != 60 || topics[2].Priority != 40 {
		t.Errorf("survivors = %d..%d, want 60..40", topics[0].Priority, topics[2].Priority)
	}
}

func TestSweepTopicsExpiresAndDropsTerminal(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	policy := testTopicPolicy()

	overdue := &PendingTopic{TopicType: "t", Title: "overdue", Priority: 50, ExpiresAt: now + dayMs}
	db.EnqueueTopic(overdue, policy)
	db.Exec("UPDATE pending_topics SET expires_at = ? WHERE id = ?", now-1000, overdue.ID)

	old := &PendingTopic{TopicType: "t", Title: "old dismissed", Priority: 50, ExpiresAt: now + dayMs}
	db.EnqueueTopic(old, policy)
	db.DismissTopic(old.ID)
	db.Exec("UPDATE pending_topics SET created_at = ? WHERE id = ?", now-2*dayMs, old.ID)

	touched, err := db.SweepTopics(now, policy)
	if err != nil {
		t.Fatalf("SweepTopics: %v", err)
	}
	if touched != 2 {
		t.Errorf("touched = %d, want 2 (one expired, one dropped)", touched)
	}

	var status string
	db.QueryRow("SELECT status FROM pending_topics WHERE id = ?", overdue.ID).Scan(&status)
	if status != "expired" {
		t.Errorf("overdue status = %q, want expired", status)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM pending_topics WHERE id = ?", old.ID).Scan(&count)
	if count != 0 {
		t.Error("old terminal topic should be deleted")
	}
}
