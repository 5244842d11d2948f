package activitypub

import (
	"github.com/tidwall/gjson"

	"github.com/klppl/apfed/internal/idurl"
)

// Mention is a parsed `tag` entry of type Mention pointing at an actor.
type Mention struct {
	Href string
	Name string
}

// Hashtag is a parsed `tag` entry of type Hashtag.
type Hashtag struct {
	Href string
	Name string
}

// Attachment is the normalized form of an `attachment` entry: whatever shape
// the source used (bare string, Link object, or array), it resolves to one
// URL plus optional media type and digest, per spec.md §4.9.
type Attachment struct {
	URL             string
	MediaType       string
	DigestMultibase string
}

// AttachmentWarning records an attachment dropped because its URL failed
// HttpUrl/SSRF validation; per spec.md §4.9 this drops the one attachment,
// not the whole document.
type AttachmentWarning struct {
	Index  int
	Reason string
}

// ParseTags extracts Mentions and Hashtags from a raw document's `tag`
// array.
func ParseTags(raw []byte) ([]Mention, []Hashtag) {
	doc := gjson.ParseBytes(raw)
	tags := doc.Get("tag")
	if !tags.Exists() {
		return nil, nil
	}

	var mentions []Mention
	var hashtags []Hashtag

	entries := tags.Array()
	if !tags.IsArray() {
		entries = []gjson.Result{tags}
	}

	for _, entry := range entries {
		switch entry.Get("type").String() {
		case "Mention":
			href := entry.Get("href").String()
			if href == "" {
				continue
			}
			mentions = append(mentions, Mention{Href: href, Name: entry.Get("name").String()})
		case "Hashtag":
			href := entry.Get("href").String()
			hashtags = append(hashtags, Hashtag{Href: href, Name: entry.Get("name").String()})
		}
	}
	return mentions, hashtags
}

// ParseAttachments normalizes the `attachment` field, which may carry `url`
// as a bare string, a Link object, or an array of either, per spec.md §4.9.
// An attachment whose URL fails HttpUrl parsing (including SSRF checks via
// checkSSRF, which may be nil to skip that check) is dropped with a
// warning rather than failing the whole document.
func ParseAttachments(raw []byte, checkSSRF func(host string) error) ([]Attachment, []AttachmentWarning) {
	doc := gjson.ParseBytes(raw)
	field := doc.Get("attachment")
	if !field.Exists() {
		return nil, nil
	}

	entries := field.Array()
	if !field.IsArray() {
		entries = []gjson.Result{field}
	}

	var out []Attachment
	var warnings []AttachmentWarning

	for i, entry := range entries {
		var url, mediaType, digest string

		urlField := entry.Get("url")
		switch {
		case entry.Type == gjson.String:
			url = entry.String()
		case urlField.Exists() && urlField.Type == gjson.String:
			url = urlField.String()
			mediaType = entry.Get("mediaType").String()
			digest = entry.Get("digestMultibase").String()
		case urlField.Exists() && urlField.IsArray():
			arr := urlField.Array()
			if len(arr) > 0 {
				if arr[0].Type == gjson.String {
					url = arr[0].String()
				} else {
					url = arr[0].Get("href").String()
				}
			}
			mediaType = entry.Get("mediaType").String()
			digest = entry.Get("digestMultibase").String()
		default:
			url = entry.Get("href").String()
			mediaType = entry.Get("mediaType").String()
			digest = entry.Get("digestMultibase").String()
		}

		if url == "" {
			warnings = append(warnings, AttachmentWarning{Index: i, Reason: "no url"})
			continue
		}

		parsed, err := idurl.ParseHttpUrl(url)
		if err != nil {
			warnings = append(warnings, AttachmentWarning{Index: i, Reason: "invalid HttpUrl: " + err.Error()})
			continue
		}
		if checkSSRF != nil {
			if err := checkSSRF(parsed.Host()); err != nil {
				warnings = append(warnings, AttachmentWarning{Index: i, Reason: "ssrf: " + err.Error()})
				continue
			}
		}

		out = append(out, Attachment{URL: url, MediaType: mediaType, DigestMultibase: digest})
	}
	return out, warnings
}
