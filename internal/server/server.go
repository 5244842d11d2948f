// Package server exposes the federation core's external interfaces from
// spec.md §6: inbox POST, actor GET, and WebFinger GET, chi-routed in the
// teacher's style.
package server

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/fetcher"
	"github.com/klppl/apfed/internal/httpsig"
	"github.com/klppl/apfed/internal/store"
	"github.com/klppl/apfed/internal/store/memory"
)

const (
	activityJSONType = `application/activity+json`
	ldJSONType       = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	maxInboxBody = 2 << 20 // mirrors transport's default max response size

	maxConcurrentActivities = 50
	maxPerOriginConcurrency = 5
)

// LocalActor is the identity this reference server federates as.
type LocalActor struct {
	ID                string
	PreferredUsername string
	Inbox             string
	RSAPublic         *rsa.PublicKey
	RSAPrivate        *rsa.PrivateKey
}

// ActivityHandler processes a verified inbound activity. The reference
// server logs and accepts; real deployments supply their own.
type ActivityHandler func(ctx context.Context, verifiedBy *httpsig.VerifiedBy, activity json.RawMessage) error

// Server wires the federation core's collaborators behind chi routes.
type Server struct {
	localDomain string
	actor       LocalActor
	fetcher     *fetcher.Fetcher
	actors      store.ActorCache
	handle      ActivityHandler

	router *chi.Mux

	inboxSem     chan struct{}
	inboxLimiter *inboxLimiter
	fetchDedup   *memory.FetchDeduper
}

// New builds a Server. handle may be nil, in which case inbound activities
// are accepted and discarded after verification.
func New(localDomain string, actor LocalActor, f *fetcher.Fetcher, actors store.ActorCache, handle ActivityHandler) *Server {
	s := &Server{
		localDomain:  localDomain,
		actor:        actor,
		fetcher:      f,
		actors:       actors,
		handle:       handle,
		inboxSem:     make(chan struct{}, maxConcurrentActivities),
		inboxLimiter: newInboxLimiter(),
		fetchDedup:   &memory.FetchDeduper{},
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the underlying chi.Mux, e.g. for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting federation http server", "addr", addr, "domain", s.localDomain)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutCtx); err != nil {
			slog.Error("federation server shutdown error", "error", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/.well-known/webfinger", s.handleWebfinger)

	r.Get("/users/{username}", s.handleActor)
	r.Post("/users/{username}/inbox", s.handleInbox)
	r.Post("/inbox", s.handleInbox)

	return r
}

// handleActor serves the local actor's AS2 document with its public key,
// per spec.md §6's "Outbox/Actor GET" wire format.
func (s *Server) handleActor(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username != s.actor.PreferredUsername {
		http.NotFound(w, r)
		return
	}

	pem, err := apcrypto.EncodeRSAPublicPEM(s.actor.RSAPublic)
	if err != nil {
		slog.Error("encode actor public key", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	doc := map[string]interface{}{
		"@context":          []string{"https://www.w3.org/ns/activitystreams"},
		"id":                s.actor.ID,
		"type":              "Person",
		"preferredUsername": s.actor.PreferredUsername,
		"inbox":             s.actor.Inbox,
		"publicKey": map[string]interface{}{
			"id":           s.actor.ID + "#main-key",
			"owner":        s.actor.ID,
			"publicKeyPem": pem,
		},
	}
	apResponse(w, doc)
}

// handleWebfinger serves a JRD for the local actor, per spec.md §6.
func (s *Server) handleWebfinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "missing resource", http.StatusBadRequest)
		return
	}
	if resource != "acct:"+s.actor.PreferredUsername+"@"+hostOf(s.localDomain) && resource != s.actor.ID {
		http.NotFound(w, r)
		return
	}

	jrd := map[string]interface{}{
		"subject": resource,
		"aliases": []string{s.actor.ID},
		"links": []map[string]string{
			{"rel": "self", "type": activityJSONType, "href": s.actor.ID},
		},
	}
	w.Header().Set("Content-Type", "application/jrd+json")
	json.NewEncoder(w).Encode(jrd)
}

// handleInbox implements the inbox POST wire format from spec.md §6: reads
// a size-capped body, verifies the HTTP message signature (resolving the
// signer's key by fetching their actor document when not cached), and
// dispatches to the configured ActivityHandler.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	origin := r.RemoteAddr
	if !s.inboxLimiter.acquire(origin) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	select {
	case s.inboxSem <- struct{}{}:
	default:
		s.inboxLimiter.release(origin)
		http.Error(w, "too many requests", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		<-s.inboxSem
		s.inboxLimiter.release(origin)
	}()

	verifiedBy, err := httpsig.VerifyRequest(r, body, s.resolveKey)
	if err != nil {
		slog.Warn("inbox: signature verification failed", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if s.handle != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := s.handle(ctx, verifiedBy, json.RawMessage(body)); err != nil {
			slog.Warn("inbox: activity handler failed", "error", err, "keyId", verifiedBy.KeyID)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// resolveKey implements httpsig.KeyResolver: cache lookup first, a fetch
// (de-duplicated in-flight at the store layer) on miss.
func (s *Server) resolveKey(keyID string) (httpsig.PublicKey, error) {
	actorID := actorIDFromKeyID(keyID)

	if cached, ok := s.actors.Get(actorID); ok {
		return publicKeyFromActor(cached.ActorJSON, keyID)
	}

	if s.fetcher == nil {
		return httpsig.PublicKey{}, fmt.Errorf("server: no fetcher configured to resolve %q", keyID)
	}

	rawAny, err := s.fetchDedup.Do(actorID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, raw, err := s.fetcher.FetchActor(ctx, actorID, fetcher.Options{})
		if err != nil {
			return nil, fmt.Errorf("server: fetch actor %q: %w", actorID, err)
		}
		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		_ = s.actors.Put(store.CachedActor{ActorID: actorID, ActorJSON: rawJSON, FetchedAt: time.Now()})
		return rawJSON, nil
	})
	if err != nil {
		return httpsig.PublicKey{}, err
	}

	return publicKeyFromActor(rawAny.([]byte), keyID)
}

func actorIDFromKeyID(keyID string) string {
	id, _, _ := strings.Cut(keyID, "#")
	return id
}

func hostOf(base string) string {
	rest := base
	if _, after, ok := strings.Cut(base, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

func apResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", activityJSONType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode activitypub response", "error", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// inboxLimiter is a per-origin concurrent-activity counter, grounded on the
// teacher's own per-origin inbox limiter.
type inboxLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newInboxLimiter() *inboxLimiter { return &inboxLimiter{counts: make(map[string]int)} }

func (l *inboxLimiter) acquire(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[origin] >= maxPerOriginConcurrency {
		return false
	}
	l.counts[origin]++
	return true
}

func (l *inboxLimiter) release(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[origin] > 0 {
		l.counts[origin]--
	}
	if l.counts[origin] == 0 {
		delete(l.counts, origin)
	}
}
