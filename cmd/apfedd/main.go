// Command apfedd is the reference binary wiring the federation core's
// collaborators together: store, transport agent, fetcher, deliverer pool,
// and the chi-routed external interfaces, in the shape of the teacher's
// cmd/klistr/main.go.
//
// Usage:
//
//	export FEDERATION_LOCAL_DOMAIN=https://yourdomain.example
//	export FEDERATION_LOCAL_USERNAME=alice
//	./apfedd
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/klppl/apfed/internal/config"
	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/deliverer"
	"github.com/klppl/apfed/internal/fetcher"
	"github.com/klppl/apfed/internal/httpsig"
	"github.com/klppl/apfed/internal/proof"
	"github.com/klppl/apfed/internal/server"
	"github.com/klppl/apfed/internal/store/memory"
	"github.com/klppl/apfed/internal/store/sqlite"
	"github.com/klppl/apfed/internal/transport"
)

var errNoKeyCached = errors.New("apfedd: no actor cached for verification method")

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting federation daemon")

	cfg := config.Load()
	cfg.MustValidate()
	slog.Info("config loaded", "domain", cfg.LocalDomain, "database", cfg.DatabaseURL)

	if !cfg.Enabled {
		slog.Warn("federation.enabled is false, exiting")
		return
	}

	db, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open store", "error", err, "url", cfg.DatabaseURL)
		os.Exit(1)
	}
	defer db.Close()

	actorCache, err := memory.NewActorCache(memory.ActorCacheConfig{MaxCost: 32 << 20, TTL: cfg.ActorCacheTTL})
	if err != nil {
		slog.Error("failed to build actor cache", "error", err)
		os.Exit(1)
	}

	username := getEnv("FEDERATION_LOCAL_USERNAME", "relay")
	actorID := cfg.BaseURL("/users/" + username)
	keyID := actorID + "#main-key"

	sk, err := loadOrGenerateRSAKey(getEnv("FEDERATION_RSA_KEY_PATH", "apfed-rsa.pem"))
	if err != nil {
		slog.Error("failed to load/generate RSA key pair", "error", err)
		os.Exit(1)
	}

	agent := transport.NewAgent(cfg.TransportConfig())

	verifyKeyFor := func(verificationMethod string) (proof.VerifyKey, error) {
		// Anonymous fetches only verify non-portable origins in this reference
		// binary; FEP-ef61 portable-object verification needs a resolved key,
		// wired here through the same actor cache the inbox resolver uses.
		cached, ok := actorCache.Get(actorIDFromVerificationMethod(verificationMethod))
		if !ok {
			return proof.VerifyKey{}, errNoKeyCached
		}
		return actorVerifyKeyFromCache(cached.ActorJSON, verificationMethod)
	}

	f := fetcher.New(agent, verifyKeyFor)
	d := deliverer.New(agent)
	pool := deliverer.NewPool(d, cfg.DelivererPoolSize)

	localActor := server.LocalActor{
		ID:                actorID,
		PreferredUsername: username,
		Inbox:             actorID + "/inbox",
		RSAPublic:         &sk.PublicKey,
		RSAPrivate:        sk,
	}

	srv := server.New(cfg.LocalDomain, localActor, f, actorCache, func(ctx context.Context, verifiedBy *httpsig.VerifiedBy, activity json.RawMessage) error {
		slog.Info("inbox: accepted activity", "from", verifiedBy.KeyID, "format", verifiedBy.Format)
		return nil
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sender := deliverer.Sender{KeyID: keyID, RSA: sk}
	go runDeliveryWorker(ctx, db.Queue(), db.Reachability(), pool, sender)

	if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
		slog.Error("federation server error", "error", err)
		os.Exit(1)
	}

	slog.Info("federation daemon stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadOrGenerateRSAKey(path string) (*rsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		return apcrypto.DecodeRSAPrivatePEM(string(data))
	}
	sk, err := apcrypto.GenerateRSAKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(apcrypto.EncodeRSAPrivatePEM(sk)), 0600); err != nil {
		slog.Warn("failed to persist generated RSA key", "path", path, "error", err)
	}
	return sk, nil
}

func actorIDFromVerificationMethod(verificationMethod string) string {
	id, _, _ := strings.Cut(verificationMethod, "#")
	return id
}

// actorVerifyKeyFromCache extracts the public key matching
// verificationMethod out of a cached actor document's assertionMethod
// entries, for FEP-ef61 portable-object proof verification.
func actorVerifyKeyFromCache(raw []byte, verificationMethod string) (proof.VerifyKey, error) {
	doc := gjson.ParseBytes(raw)
	entries := doc.Get("assertionMethod").Array()
	for _, e := range entries {
		if e.Get("id").String() != verificationMethod {
			continue
		}
		mb := e.Get("publicKeyMultibase").String()
		if mb == "" {
			continue
		}
		pub, err := apcrypto.MultikeyDecode(mb)
		if err != nil {
			return proof.VerifyKey{}, err
		}
		switch k := pub.(type) {
		case ed25519.PublicKey:
			return proof.VerifyKey{Ed25519: k}, nil
		case *rsa.PublicKey:
			return proof.VerifyKey{RSA: k}, nil
		}
	}
	return proof.VerifyKey{}, errNoKeyCached
}
