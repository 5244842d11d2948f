// Package webfinger implements acct/actor-URL resolution across
// clearnet/Tor/I2P, JRD parsing, and FEP-d556 server discovery, per
// spec.md §4.8.
package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/klppl/apfed/internal/idurl"
	"github.com/klppl/apfed/internal/transport"
)

// Link is one entry of a JRD's `links` array.
type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// Jrd is a JSON Resource Descriptor as returned by WebFinger, per
// RFC 7033 and spec.md §4.8.
type Jrd struct {
	Subject    string   `json:"subject"`
	Aliases    []string `json:"aliases,omitempty"`
	Links      []Link   `json:"links,omitempty"`
}

// SubjectMismatchError is returned when a JRD's subject does not match the
// resource requested, per spec.md §4.8 ("validate subject matches
// request").
type SubjectMismatchError struct {
	Requested, Got string
}

func (e *SubjectMismatchError) Error() string {
	return fmt.Sprintf("webfinger: subject mismatch: requested %q, got %q", e.Requested, e.Got)
}

// apActorMediaTypes are the media types webfinger's "self" link extraction
// accepts, mirroring the fetcher's content-type gate.
var apActorMediaTypes = []string{
	"application/activity+json",
	`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`,
}

// Resolver performs WebFinger lookups per spec.md §4.8.
type Resolver struct {
	agent *transport.Agent
}

// New builds a Resolver around a transport.Agent.
func New(agent *transport.Agent) *Resolver {
	return &Resolver{agent: agent}
}

// Webfinger implements webfinger(address) -> Jrd from spec.md §4.8.
// address is either "acct:user@host" or a full actor URL.
func (r *Resolver) Webfinger(ctx context.Context, address string) (Jrd, error) {
	resource, host, err := normalizeAddress(address)
	if err != nil {
		return Jrd{}, err
	}

	endpoint := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s", host, url.QueryEscape(resource))
	headers := map[string]string{"Accept": "application/jrd+json"}

	resp, body, err := r.agent.Get(ctx, endpoint, headers, nil)
	if err != nil {
		return Jrd{}, fmt.Errorf("webfinger: fetch %s: %w", endpoint, err)
	}
	if err := transport.CheckContentType(resp.Header.Get("Content-Type"), "application/jrd+json"); err != nil {
		return Jrd{}, fmt.Errorf("webfinger: %w", err)
	}

	var jrd Jrd
	if err := json.Unmarshal(body, &jrd); err != nil {
		return Jrd{}, fmt.Errorf("webfinger: parse jrd: %w", err)
	}

	if !subjectMatches(resource, jrd.Subject) {
		return Jrd{}, &SubjectMismatchError{Requested: resource, Got: jrd.Subject}
	}

	return jrd, nil
}

// ResolveActorURL extracts the actor URL from a Jrd's "self" link of an
// accepted AS2/AP media type, per spec.md §4.8.
func ResolveActorURL(jrd Jrd) (string, error) {
	for _, link := range jrd.Links {
		if link.Rel != "self" {
			continue
		}
		for _, mt := range apActorMediaTypes {
			if transport.CheckContentType(link.Type, mt) == nil {
				return link.Href, nil
			}
		}
	}
	return "", fmt.Errorf("webfinger: no self link with an ActivityPub media type")
}

// ServerDiscovery implements FEP-d556: query the instance base URL itself
// as the WebFinger resource, per spec.md §4.8.
func (r *Resolver) ServerDiscovery(ctx context.Context, instanceBaseURL string) (Jrd, error) {
	u, err := idurl.ParseHttpUrl(instanceBaseURL)
	if err != nil {
		return Jrd{}, fmt.Errorf("webfinger: server discovery: %w", err)
	}
	return r.Webfinger(ctx, u.String())
}

// normalizeAddress turns an "acct:user@host" or full actor URL into the
// WebFinger `resource` value and the host to query, per spec.md §4.8.
// .onion/.i2p/.loki hosts are routed through the agent's proxy selection
// transparently, since Resolver.agent already knows how to dial them.
func normalizeAddress(address string) (resource, host string, err error) {
	if strings.HasPrefix(address, "acct:") {
		rest := strings.TrimPrefix(address, "acct:")
		at := strings.LastIndexByte(rest, '@')
		if at < 0 {
			return "", "", fmt.Errorf("webfinger: acct address missing host: %q", address)
		}
		host = rest[at+1:]
		return address, host, nil
	}

	u, err := idurl.ParseHttpUrl(address)
	if err != nil {
		return "", "", fmt.Errorf("webfinger: address is neither acct: nor a valid HttpUrl: %w", err)
	}
	return address, u.Host(), nil
}

// subjectMatches compares resource to a JRD's subject field, case
// insensitively for the acct: form per spec.md §4.8.
func subjectMatches(resource, subject string) bool {
	if strings.HasPrefix(resource, "acct:") && strings.HasPrefix(subject, "acct:") {
		return strings.EqualFold(resource, subject)
	}
	return resource == subject
}
