package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/proxy"

	"github.com/klppl/apfed/internal/idurl"
)

// SelectProxy returns the proxy URL (possibly empty, meaning direct) to use
// for a request targeting host, per spec.md §4.5: ".onion" -> onion proxy,
// ".i2p"/".loki" -> i2p proxy, else the clearnet proxy if set, else direct.
func (c Config) SelectProxy(host string) string {
	switch {
	case idurl.IsHostOnion(host):
		return c.OnionProxyURL
	case idurl.IsHostI2P(host):
		return c.I2PProxyURL
	default:
		return c.ProxyURL
	}
}

// dialerFor returns a net.Dialer-shaped DialContext function that routes
// through a SOCKS5 proxy when proxyURL is set, and falls back to a direct
// dial with base otherwise.
func dialerFor(proxyURL string, base *net.Dialer) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if proxyURL == "" {
		return base.DialContext, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse proxy url: %w", err)
	}
	dialer, err := proxy.FromURL(u, base)
	if err != nil {
		return nil, fmt.Errorf("transport: build proxy dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}, nil
	}
	return contextDialer.DialContext, nil
}
