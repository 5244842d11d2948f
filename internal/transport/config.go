// Package transport implements the federation core's async HTTP client
// (the "agent"): proxy routing by target network, SSRF-checked DNS
// resolution, bounded redirects, response size caps, and content-type
// gating, per spec.md §4.5.
package transport

import "time"

// Config is the enumerated transport configuration from spec.md §4.5/§6.
type Config struct {
	UserAgent string

	ProxyURL      string // clearnet outgoing proxy
	OnionProxyURL string // .onion targets
	I2PProxyURL   string // .i2p/.loki targets

	FetcherTimeout   time.Duration // default 30s
	DelivererTimeout time.Duration // default 10s

	SSRFProtectionEnabled bool  // default true
	MaxResponseSize       int64 // default 2 MiB
	MaxRedirects          int   // default 3

	HTTP2Enabled bool
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:              "apfed/1.0 (+https://github.com/klppl/apfed)",
		FetcherTimeout:         30 * time.Second,
		DelivererTimeout:       10 * time.Second,
		SSRFProtectionEnabled:  true,
		MaxResponseSize:        2 * 1024 * 1024,
		MaxRedirects:           3,
	}
}
