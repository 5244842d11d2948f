package webfinger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddressAcct(t *testing.T) {
	resource, host, err := normalizeAddress("acct:alice@a.example")
	require.NoError(t, err)
	require.Equal(t, "acct:alice@a.example", resource)
	require.Equal(t, "a.example", host)
}

func TestNormalizeAddressActorURL(t *testing.T) {
	resource, host, err := normalizeAddress("https://a.example/users/alice")
	require.NoError(t, err)
	require.Equal(t, "https://a.example/users/alice", resource)
	require.Equal(t, "a.example", host)
}

func TestNormalizeAddressRejectsMalformedAcct(t *testing.T) {
	_, _, err := normalizeAddress("acct:noatsign")
	require.Error(t, err)
}

func TestSubjectMismatchIsCaseInsensitiveForAcct(t *testing.T) {
	require.True(t, subjectMatches("acct:Alice@Example.com", "acct:alice@example.com"))
	require.False(t, subjectMatches("https://a.example/alice", "https://a.example/bob"))
}

func TestResolveActorURLExtractsSelfLink(t *testing.T) {
	jrd := Jrd{
		Subject: "acct:alice@a.example",
		Links: []Link{
			{Rel: "alternate", Type: "text/html", Href: "https://a.example/@alice"},
			{Rel: "self", Type: "application/activity+json", Href: "https://a.example/users/alice"},
		},
	}
	url, err := ResolveActorURL(jrd)
	require.NoError(t, err)
	require.Equal(t, "https://a.example/users/alice", url)
}

func TestResolveActorURLRejectsNonAPLink(t *testing.T) {
	jrd := Jrd{Links: []Link{{Rel: "self", Type: "text/html", Href: "https://a.example/alice.html"}}}
	_, err := ResolveActorURL(jrd)
	require.Error(t, err)
}

func TestResolveActorURLAcceptsLdJsonProfile(t *testing.T) {
	jrd := Jrd{Links: []Link{{
		Rel:  "self",
		Type: `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`,
		Href: "https://a.example/users/alice",
	}}}
	url, err := ResolveActorURL(jrd)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(url, "/alice"))
}
