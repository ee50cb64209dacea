package oauth

import (
	"testing"
	"time"
)

func TestRefreshQueueOrdersBySoonestExpiry(t *testing.T) {
	q := NewRefreshQueue()
	now := time.Now()

	q.Upsert("later", now.Add(time.Hour))
	q.Upsert("soonest", now.Add(time.Minute))
	q.Upsert("middle", now.Add(30*time.Minute))

	due := q.DueBefore(now.Add(2 * time.Hour))
	if len(due) != 3 {
		t.Fatalf("expected 3 due entries, got %d", len(due))
	}
	if due[0].SessionID != "soonest" || due[1].SessionID != "middle" || due[2].SessionID != "later" {
		t.Errorf("unexpected order: %v", []string{due[0].SessionID, due[1].SessionID, due[2].SessionID})
	}
	if q.Len() != 0 {
		t.Errorf("expected queue drained after DueBefore, got %d remaining", q.Len())
	}
}

func TestRefreshQueueRemove(t *testing.T) {
	q := NewRefreshQueue()
	q.Upsert("a", time.Now().Add(time.Minute))
	q.Remove("a")
	if q.Len() != 0 {
		t.Errorf("expected empty queue after Remove, got %d", q.Len())
	}
}

func TestRefreshQueueUpsertReschedules(t *testing.T) {
	q := NewRefreshQueue()
	now := time.Now()
	q.Upsert("a", now.Add(time.Hour))
	q.Upsert("a", now.Add(time.Minute))

	due := q.DueBefore(now.Add(2 * time.Minute))
	if len(due) != 1 {
		t.Fatalf("expected rescheduled entry to be due, got %d", len(due))
	}
}
