package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentGetFollowsRedirectAndResigns(t *testing.T) {
	var finalHits, firstHits int
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalHits++
		require.Equal(t, "resigned", r.Header.Get("X-Sig"))
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer final.Close()

	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits++
		http.Redirect(w, r, final.URL+"/moved", http.StatusFound)
	}))
	defer first.Close()

	cfg := DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	a := NewAgent(cfg)

	signCount := 0
	sign := func(req *http.Request) error {
		signCount++
		req.Header.Set("X-Sig", "resigned")
		return nil
	}

	resp, body, err := a.Get(context.Background(), first.URL, nil, sign)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"ok":true}`, string(body))
	require.Equal(t, 1, firstHits)
	require.Equal(t, 1, finalHits)
	require.Equal(t, 2, signCount, "sign must run again on the redirected request")
}

func TestAgentGetBlocksSSRFTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSRFProtectionEnabled = true
	a := NewAgent(cfg)

	_, _, err := a.Get(context.Background(), "http://127.0.0.1:1/x", nil, nil)
	require.Error(t, err)
}

func TestAgentPostDoesNotFollowRedirects(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, "http://example.invalid/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	a := NewAgent(cfg)

	resp, _, err := a.Post(context.Background(), srv.URL, []byte(`{}`), nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, 1, hits)
}

func TestCheckContentTypeStripsCharset(t *testing.T) {
	err := CheckContentType(`application/activity+json; charset=utf-8`, "application/activity+json")
	require.NoError(t, err)

	err = CheckContentType(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`,
		`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	require.NoError(t, err)

	err = CheckContentType("text/html", "application/activity+json")
	require.Error(t, err)
}
