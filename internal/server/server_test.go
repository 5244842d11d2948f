package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	actors, err := memory.NewActorCache(memory.DefaultActorCacheConfig())
	require.NoError(t, err)

	actor := LocalActor{
		ID:                "https://a.example/users/alice",
		PreferredUsername: "alice",
		Inbox:             "https://a.example/users/alice/inbox",
		RSAPublic:         &sk.PublicKey,
		RSAPrivate:        sk,
	}
	return New("https://a.example", actor, nil, actors, nil)
}

func TestHandleActorServesPublicKey(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/users/alice", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "https://a.example/users/alice", doc["id"])
	pk := doc["publicKey"].(map[string]interface{})
	require.Equal(t, "https://a.example/users/alice#main-key", pk["id"])
}

func TestHandleActorRejectsUnknownUsername(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/users/bob", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWebfingerResolvesLocalActor(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@a.example", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/jrd+json", rec.Header().Get("Content-Type"))

	var jrd map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jrd))
	require.Equal(t, "acct:alice@a.example", jrd["subject"])
}

func TestHandleWebfingerRejectsUnknownResource(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:mallory@a.example", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInboxRejectsUnsignedRequest(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"type":"Like","actor":"https://b.example/users/carol"}`)
	req := httptest.NewRequest(http.MethodPost, "/users/alice/inbox", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
