package oauth

import (
	"container/heap"
	"sync"
	"time"
)

// RefreshEntry is one OAuth session awaiting proactive token refresh,
// ordered soonest-expiry-first (§4.10, §5: "refresh when expires_at - now
// < 60s"). Adapted from the teacher's task priority queue
// (internal/orchestrator/queue/queue.go): the ordering key changes from an
// explicit numeric priority to ExpiresAt, ascending.
type RefreshEntry struct {
	SessionID string
	ExpiresAt time.Time
	index     int
}

type refreshHeap []*RefreshEntry

func (h refreshHeap) Len() int { return len(h) }
func (h refreshHeap) Less(i, j int) bool { return h[i].ExpiresAt.Before(h[j].ExpiresAt) }
func (h refreshHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *refreshHeap) Push(x interface{}) {
	item := x.(*RefreshEntry)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *refreshHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// RefreshQueue tracks pending refreshes by soonest expiry.
type RefreshQueue struct {
	mu      sync.Mutex
	heap    refreshHeap
	entries map[string]*RefreshEntry // sessionID -> entry
}

// NewRefreshQueue creates an empty RefreshQueue.
func NewRefreshQueue() *RefreshQueue {
	q := &RefreshQueue{entries: make(map[string]*RefreshEntry)}
	heap.Init(&q.heap)
	return q
}

// Upsert schedules (or reschedules) sessionID's refresh for expiresAt.
func (q *RefreshQueue) Upsert(sessionID string, expiresAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry, ok := q.entries[sessionID]; ok {
		entry.ExpiresAt = expiresAt
		heap.Fix(&q.heap, entry.index)
		return
	}

	entry := &RefreshEntry{SessionID: sessionID, ExpiresAt: expiresAt}
	heap.Push(&q.heap, entry)
	q.entries[sessionID] = entry
}

// Remove drops sessionID from the queue, e.g. after revocation.
func (q *RefreshQueue) Remove(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[sessionID]
	if !ok {
		return
	}
	heap.Remove(&q.heap, entry.index)
	delete(q.entries, sessionID)
}

// DueBefore pops and returns every entry whose ExpiresAt is before cutoff,
// removing them from the queue (callers re-Upsert after a successful
// refresh).
func (q *RefreshQueue) DueBefore(cutoff time.Time) []*RefreshEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*RefreshEntry
	for len(q.heap) > 0 && q.heap[0].ExpiresAt.Before(cutoff) {
		entry := heap.Pop(&q.heap).(*RefreshEntry)
		delete(q.entries, entry.SessionID)
		due = append(due, entry)
	}
	return due
}

// Len returns the number of scheduled refreshes.
func (q *RefreshQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
