package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klppl/apfed/internal/transport"
)

func newTestFetcher() *Fetcher {
	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = false
	return New(transport.NewAgent(cfg), nil)
}

func TestFetchObjectAcceptsMatchingOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"` + "http://" + r.Host + `/note/1","type":"Note"}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	doc, err := f.FetchObject(context.Background(), srv.URL+"/note/1", Options{})
	require.NoError(t, err)
	require.Equal(t, "Note", doc["type"])
}

func TestFetchObjectRejectsMismatchedId(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"https://attacker.example/note/1","type":"Note"}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/note/1", Options{})
	require.Error(t, err)
	var idErr *UnexpectedObjectIdError
	require.ErrorAs(t, err, &idErr)
}

func TestFetchObjectSkipVerificationAllowsMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"https://attacker.example/note/1","type":"Note"}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	doc, err := f.FetchObject(context.Background(), srv.URL+"/note/1", Options{SkipVerification: true})
	require.NoError(t, err)
	require.Equal(t, "Note", doc["type"])
}

func TestFetchActorFailsOnNonActor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"http://` + r.Host + `/note/1","type":"Note"}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, _, err := f.FetchActor(context.Background(), srv.URL+"/note/1", Options{})
	require.Error(t, err)
	var nae *NotAnActorError
	require.ErrorAs(t, err, &nae)
}
