package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klppl/apfed/internal/store"
)

// OutgoingQueue is an in-memory store.OutgoingQueue.
type OutgoingQueue struct {
	mu      sync.Mutex
	entries map[string]store.QueueEntry
}

// NewOutgoingQueue builds an empty OutgoingQueue.
func NewOutgoingQueue() *OutgoingQueue {
	return &OutgoingQueue{entries: make(map[string]store.QueueEntry)}
}

var _ store.OutgoingQueue = (*OutgoingQueue)(nil)

func (q *OutgoingQueue) Enqueue(entry store.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[entry.ID] = entry
	return nil
}

func (q *OutgoingQueue) DueEntries(before time.Time, limit int) ([]store.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []store.QueueEntry
	for _, e := range q.entries {
		if !e.NextAttemptAt.After(before) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (q *OutgoingQueue) Reschedule(id string, attemptCount int, nextAttemptAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil
	}
	e.AttemptCount = attemptCount
	e.NextAttemptAt = nextAttemptAt
	q.entries[id] = e
	return nil
}

func (q *OutgoingQueue) Delete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	return nil
}
