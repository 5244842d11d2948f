package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klppl/apfed/internal/store"
)

func TestActorCachePutGetRoundTrip(t *testing.T) {
	c, err := NewActorCache(DefaultActorCacheConfig())
	require.NoError(t, err)

	require.NoError(t, c.Put(store.CachedActor{
		ActorID:   "https://a.example/users/alice",
		ActorJSON: []byte(`{"id":"https://a.example/users/alice"}`),
		FetchedAt: time.Now(),
	}))

	got, ok := c.Get("https://a.example/users/alice")
	require.True(t, ok)
	require.Equal(t, "https://a.example/users/alice", got.ActorID)
}

func TestActorCacheExpiresPastTTL(t *testing.T) {
	cfg := DefaultActorCacheConfig()
	cfg.TTL = time.Millisecond
	c, err := NewActorCache(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Put(store.CachedActor{
		ActorID:   "https://a.example/users/alice",
		ActorJSON: []byte(`{}`),
		FetchedAt: time.Now().Add(-time.Hour),
	}))

	_, ok := c.Get("https://a.example/users/alice")
	require.False(t, ok)
}

func TestActorCacheInvalidate(t *testing.T) {
	c, err := NewActorCache(DefaultActorCacheConfig())
	require.NoError(t, err)
	require.NoError(t, c.Put(store.CachedActor{ActorID: "x", ActorJSON: []byte(`{}`), FetchedAt: time.Now()}))
	require.NoError(t, c.Invalidate("x"))
	_, ok := c.Get("x")
	require.False(t, ok)
}

func TestReachabilityStoreRecordsFailuresAndResets(t *testing.T) {
	s := NewReachabilityStore()
	now := time.Now()
	require.NoError(t, s.RecordFailure("actor", now, false))
	require.NoError(t, s.RecordFailure("actor", now.Add(time.Minute), true))

	r, ok := s.Get("actor")
	require.True(t, ok)
	require.Equal(t, 2, r.ConsecutiveFailures)
	require.False(t, r.MarkedUnreachableAt.IsZero())

	require.NoError(t, s.RecordSuccess("actor", now.Add(2*time.Minute)))
	r, ok = s.Get("actor")
	require.True(t, ok)
	require.Equal(t, 0, r.ConsecutiveFailures)
}

func TestOutgoingQueueDueEntriesOrdersByNextAttempt(t *testing.T) {
	q := NewOutgoingQueue()
	base := time.Now()
	require.NoError(t, q.Enqueue(store.QueueEntry{SenderID: "a", RecipientInbox: "i1", NextAttemptAt: base.Add(time.Hour)}))
	require.NoError(t, q.Enqueue(store.QueueEntry{SenderID: "a", RecipientInbox: "i2", NextAttemptAt: base.Add(-time.Hour)}))
	require.NoError(t, q.Enqueue(store.QueueEntry{SenderID: "a", RecipientInbox: "i3", NextAttemptAt: base.Add(time.Minute)}))

	due, err := q.DueEntries(base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	require.Equal(t, "i2", due[0].RecipientInbox)
	require.Equal(t, "i3", due[1].RecipientInbox)
	require.Equal(t, "i1", due[2].RecipientInbox)
}

func TestOutgoingQueueRespectsLimit(t *testing.T) {
	q := NewOutgoingQueue()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(store.QueueEntry{RecipientInbox: fmt.Sprintf("i%d", i), NextAttemptAt: base}))
	}
	due, err := q.DueEntries(base, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
}

func TestOutgoingQueueRescheduleAndDelete(t *testing.T) {
	q := NewOutgoingQueue()
	require.NoError(t, q.Enqueue(store.QueueEntry{ID: "job-1", NextAttemptAt: time.Now()}))
	require.NoError(t, q.Reschedule("job-1", 3, time.Now().Add(time.Hour)))

	due, err := q.DueEntries(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	require.NoError(t, q.Delete("job-1"))
	due, err = q.DueEntries(time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestFetchDeduperCollapsesConcurrentCalls(t *testing.T) {
	var d FetchDeduper
	var calls int32

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := d.Do("https://a.example/users/alice", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "actor-json", nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, calls, int32(2), "concurrent fetches for the same key should mostly collapse to one call")
	for _, v := range results {
		require.Equal(t, "actor-json", v)
	}
}
