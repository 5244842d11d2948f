package activitypub

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PublicMarker is the canonical form every public-audience spelling is
// normalized to, per spec.md §4.9.
const PublicMarker = "https://www.w3.org/ns/activitystreams#Public"

var publicSpellings = map[string]bool{
	"as:Public":    true,
	"Public":       true,
	PublicMarker:   true,
}

// CanonicalizeAudienceTerm maps any recognized spelling of the public
// audience to PublicMarker, leaving other values untouched.
func CanonicalizeAudienceTerm(term string) string {
	if publicSpellings[term] {
		return PublicMarker
	}
	return term
}

// ExpandAudience computes the de-duplicated union of to/cc and, for
// container Add/Remove activities, target, per spec.md §4.9. Input is raw
// JSON; recipients are returned in first-seen order with public-audience
// spellings canonicalized.
func ExpandAudience(raw []byte) []string {
	doc := gjson.ParseBytes(raw)
	seen := make(map[string]bool)
	var out []string

	add := func(v string) {
		v = CanonicalizeAudienceTerm(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	fields := []string{"to", "cc"}
	typ := topType(doc)
	if typ == "Add" || typ == "Remove" {
		fields = append(fields, "target")
	}

	for _, f := range fields {
		val := doc.Get(f)
		if !val.Exists() {
			continue
		}
		if val.IsArray() {
			for _, item := range val.Array() {
				add(item.String())
			}
			continue
		}
		add(val.String())
	}
	return out
}

// NormalizeAudience rewrites the to/cc arrays of a raw activity document in
// place, replacing any public-audience spelling with PublicMarker and
// removing duplicates, and returns the updated document. This is the
// write-side counterpart to ExpandAudience: recipients are computed once by
// the classifier and then persisted back into the wire form so re-delivery
// and storage see a stable canonical document.
func NormalizeAudience(raw []byte) ([]byte, error) {
	doc := gjson.ParseBytes(raw)
	out := raw
	var err error

	for _, field := range []string{"to", "cc"} {
		val := doc.Get(field)
		if !val.Exists() || !val.IsArray() {
			continue
		}
		seen := make(map[string]bool)
		var normalized []string
		for _, item := range val.Array() {
			v := CanonicalizeAudienceTerm(item.String())
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			normalized = append(normalized, v)
		}
		out, err = sjson.SetBytes(out, field, normalized)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
