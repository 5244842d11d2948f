package activitypub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyActorWinsOverCollection(t *testing.T) {
	doc := []byte(`{"id":"https://a.example/alice","inbox":"https://a.example/alice/inbox","items":[1,2,3]}`)
	require.Equal(t, TypeActor, Classify(doc))
}

func TestClassifyVerificationMethod(t *testing.T) {
	doc := []byte(`{"id":"https://a.example/alice#key","publicKeyMultibase":"zABC"}`)
	require.Equal(t, TypeVerificationMethod, Classify(doc))
}

func TestClassifyActivity(t *testing.T) {
	doc := []byte(`{"type":"Like","actor":"https://a.example/alice","object":"https://b.example/1"}`)
	require.Equal(t, TypeActivity, Classify(doc))
}

func TestClassifyLinkRequiresNoID(t *testing.T) {
	doc := []byte(`{"href":"https://a.example/x","type":"Link"}`)
	require.Equal(t, TypeLink, Classify(doc))
}

func TestClassifyPlainObject(t *testing.T) {
	doc := []byte(`{"id":"https://a.example/note/1","type":"Note","content":"hi"}`)
	require.Equal(t, TypeObject, Classify(doc))
}

func TestExpandAudienceCanonicalizesPublic(t *testing.T) {
	doc := []byte(`{"type":"Create","to":["as:Public","https://a.example/alice/followers"],"cc":["Public"]}`)
	got := ExpandAudience(doc)
	require.Equal(t, []string{PublicMarker, "https://a.example/alice/followers"}, got)
}

func TestParseAttachmentsDropsInvalidURL(t *testing.T) {
	doc := []byte(`{"attachment":[{"url":"https://a.example/1.png","mediaType":"image/png"},{"url":"not a url"}]}`)
	atts, warnings := ParseAttachments(doc, nil)
	require.Len(t, atts, 1)
	require.Equal(t, "https://a.example/1.png", atts[0].URL)
	require.Len(t, warnings, 1)
}

func TestParseTagsMentionsAndHashtags(t *testing.T) {
	doc := []byte(`{"tag":[{"type":"Mention","href":"https://b.example/bob","name":"@bob"},{"type":"Hashtag","href":"https://a.example/tags/go","name":"#go"}]}`)
	mentions, hashtags := ParseTags(doc)
	require.Len(t, mentions, 1)
	require.Equal(t, "https://b.example/bob", mentions[0].Href)
	require.Len(t, hashtags, 1)
	require.Equal(t, "#go", hashtags[0].Name)
}

func TestValidateActorRejectsForeignKeyOwner(t *testing.T) {
	doc := []byte(`{"id":"https://a.example/alice","inbox":"https://a.example/alice/inbox","publicKey":{"id":"https://a.example/alice#main-key","owner":"https://evil.example/mallory"}}`)
	_, err := ValidateActor(doc)
	require.Error(t, err)
}

func TestPrefersRFC9421(t *testing.T) {
	doc := []byte(`{"id":"https://a.example/alice","implements":[{"id":"https://w3id.org/fep/9091"}]}`)
	require.True(t, PrefersRFC9421(doc))
}
