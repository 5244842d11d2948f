package memory

import (
	"sync"
	"time"

	"github.com/klppl/apfed/internal/store"
)

// ReachabilityStore is an in-memory store.ReachabilityStore.
type ReachabilityStore struct {
	mu      sync.Mutex
	records map[string]store.ReachabilityRecord
}

// NewReachabilityStore builds an empty ReachabilityStore.
func NewReachabilityStore() *ReachabilityStore {
	return &ReachabilityStore{records: make(map[string]store.ReachabilityRecord)}
}

var _ store.ReachabilityStore = (*ReachabilityStore)(nil)

func (s *ReachabilityStore) Get(actorID string) (store.ReachabilityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[actorID]
	return r, ok
}

func (s *ReachabilityStore) RecordSuccess(actorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[actorID] = store.ReachabilityRecord{
		ActorID:       actorID,
		LastAttemptAt: at,
		LastSuccessAt: at,
	}
	return nil
}

func (s *ReachabilityStore) RecordFailure(actorID string, at time.Time, markUnreachable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[actorID]
	r.ActorID = actorID
	r.LastAttemptAt = at
	r.ConsecutiveFailures++
	if markUnreachable {
		r.MarkedUnreachableAt = at
	}
	s.records[actorID] = r
	return nil
}
