// Package config loads the federation core's runtime configuration from
// environment variables, in the shape of the teacher's
// internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klppl/apfed/internal/deliverer"
	"github.com/klppl/apfed/internal/store/memory"
	"github.com/klppl/apfed/internal/transport"
)

// Config holds all runtime configuration loaded from environment
// variables, covering spec.md §6's enumerated configuration options.
type Config struct {
	LocalDomain string // FEDERATION_LOCAL_DOMAIN
	Port        string // PORT
	DatabaseURL string // FEDERATION_DATABASE_URL

	Enabled bool // FEDERATION_ENABLED

	SSRFProtectionEnabled bool   // FEDERATION_SSRF_PROTECTION_ENABLED
	ProxyURL              string // FEDERATION_PROXY_URL
	OnionProxyURL         string // FEDERATION_ONION_PROXY_URL
	I2PProxyURL           string // FEDERATION_I2P_PROXY_URL

	FetcherTimeout   time.Duration // FEDERATION_FETCHER_TIMEOUT
	DelivererTimeout time.Duration // FEDERATION_DELIVERER_TIMEOUT
	DelivererPoolSize int          // FEDERATION_DELIVERER_POOL_SIZE
	MaxResponseSize  int64         // FEDERATION_MAX_RESPONSE_SIZE

	ActorCacheTTL time.Duration // FEDERATION_ACTOR_CACHE_TTL
}

// Load reads configuration from environment variables, falling back to
// spec-mandated defaults wherever a variable is unset.
func Load() *Config {
	transportDefaults := transport.DefaultConfig()
	actorCacheDefaults := memory.DefaultActorCacheConfig()

	return &Config{
		LocalDomain: getEnv("FEDERATION_LOCAL_DOMAIN", "http://localhost:8000"),
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: getEnv("FEDERATION_DATABASE_URL", "apfed.db"),

		Enabled: getEnvBool("FEDERATION_ENABLED", true),

		SSRFProtectionEnabled: getEnvBool("FEDERATION_SSRF_PROTECTION_ENABLED", transportDefaults.SSRFProtectionEnabled),
		ProxyURL:              os.Getenv("FEDERATION_PROXY_URL"),
		OnionProxyURL:         os.Getenv("FEDERATION_ONION_PROXY_URL"),
		I2PProxyURL:           os.Getenv("FEDERATION_I2P_PROXY_URL"),

		FetcherTimeout:    parseDuration(os.Getenv("FEDERATION_FETCHER_TIMEOUT"), transportDefaults.FetcherTimeout),
		DelivererTimeout:  parseDuration(os.Getenv("FEDERATION_DELIVERER_TIMEOUT"), transportDefaults.DelivererTimeout),
		DelivererPoolSize: parseInt(os.Getenv("FEDERATION_DELIVERER_POOL_SIZE"), deliverer.DefaultPoolSize),
		MaxResponseSize:   parseInt64(os.Getenv("FEDERATION_MAX_RESPONSE_SIZE"), transportDefaults.MaxResponseSize),

		ActorCacheTTL: parseDuration(os.Getenv("FEDERATION_ACTOR_CACHE_TTL"), actorCacheDefaults.TTL),
	}
}

// TransportConfig builds a transport.Config from this Config's fields.
func (c *Config) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.SSRFProtectionEnabled = c.SSRFProtectionEnabled
	cfg.ProxyURL = c.ProxyURL
	cfg.OnionProxyURL = c.OnionProxyURL
	cfg.I2PProxyURL = c.I2PProxyURL
	cfg.FetcherTimeout = c.FetcherTimeout
	cfg.DelivererTimeout = c.DelivererTimeout
	cfg.MaxResponseSize = c.MaxResponseSize
	return cfg
}

// BaseURL constructs an absolute URL from a path, relative to
// LocalDomain.
func (c *Config) BaseURL(path string) string {
	return strings.TrimRight(c.LocalDomain, "/") + path
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.ToLower(v) == "true" || v == "1"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

// MustValidate checks required invariants and exits on failure, mirroring
// the teacher's fail-fast startup checks.
func (c *Config) MustValidate() {
	if c.LocalDomain == "" {
		fmt.Fprintln(os.Stderr, "ERROR: FEDERATION_LOCAL_DOMAIN must not be empty")
		os.Exit(1)
	}
}
