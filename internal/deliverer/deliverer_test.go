package deliverer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/transport"
)

func TestSendObjectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("Content-Digest"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	d := New(transport.NewAgent(cfg))

	result, err := d.SendObject(context.Background(), []byte(`{"type":"Like"}`), srv.URL+"/inbox",
		Sender{KeyID: "https://a.example/alice#main-key", RSA: sk})
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, result.Kind)
}

func TestSendObjectGoneIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	d := New(transport.NewAgent(cfg))

	result, err := d.SendObject(context.Background(), []byte(`{"type":"Like"}`), srv.URL+"/inbox",
		Sender{KeyID: "https://a.example/alice#main-key", RSA: sk})
	require.NoError(t, err)
	require.Equal(t, ResultFatal, result.Kind)
}

func TestSendObjectServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	d := New(transport.NewAgent(cfg))

	result, err := d.SendObject(context.Background(), []byte(`{"type":"Like"}`), srv.URL+"/inbox",
		Sender{KeyID: "https://a.example/alice#main-key", RSA: sk})
	require.NoError(t, err)
	require.Equal(t, ResultTransient, result.Kind)
}

func TestNextRetryDelayGrowsAndEventuallyStops(t *testing.T) {
	d1, ok := NextRetryDelay(1)
	require.True(t, ok)
	require.Greater(t, d1, time.Duration(0))

	_, ok = NextRetryDelay(1000)
	require.False(t, ok, "retry schedule must exhaust its 72h budget eventually")
}

func TestReachabilitySuppressedAfterUnreachable(t *testing.T) {
	var r Reachability
	now := time.Now()
	r.RecordFailure(now, true)
	require.True(t, r.Suppressed(now.Add(time.Hour)))
	require.False(t, r.Suppressed(now.Add(25*time.Hour)))

	r.RecordSuccess(now)
	require.False(t, r.Suppressed(now))
	require.Equal(t, 0, r.ConsecutiveFailures)
}

func TestPoolRunAllDeliversEveryJob(t *testing.T) {
	var delivered int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	d := New(transport.NewAgent(cfg))
	pool := NewPool(d, 10)

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{
			ID:             "job",
			Sender:         Sender{KeyID: "https://a.example/alice#main-key", RSA: sk},
			RecipientInbox: srv.URL + "/inbox",
			ActivityJSON:   []byte(`{"type":"Like"}`),
		}
	}

	var results int32
	var mu sync.Mutex
	var kinds []ResultKind
	pool.RunAll(context.Background(), jobs, func(j Job, r Result, err error) {
		require.NoError(t, err)
		atomic.AddInt32(&results, 1)
		mu.Lock()
		kinds = append(kinds, r.Kind)
		mu.Unlock()
	})

	require.EqualValues(t, 5, delivered)
	require.EqualValues(t, 5, results)
	for _, k := range kinds {
		require.Equal(t, ResultSuccess, k)
	}
}
