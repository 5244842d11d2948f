package activitypub

import "github.com/tidwall/gjson"

// ImplementedFeps reads an actor's FEP-844e `implements` capability list:
// a peer that advertises a FEP id there signals it will both send and
// accept that FEP's wire representation, e.g. RFC-9421 signatures.
func ImplementedFeps(actorRaw []byte) []string {
	doc := gjson.ParseBytes(actorRaw)
	field := doc.Get("implements")
	if !field.Exists() {
		return nil
	}

	entries := field.Array()
	if !field.IsArray() {
		entries = []gjson.Result{field}
	}

	var out []string
	for _, e := range entries {
		if e.Type == gjson.String {
			out = append(out, e.String())
			continue
		}
		if id := e.Get("id").String(); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// FEPRFC9421 is the placeholder FEP id SPEC_FULL.md uses to signal that a
// peer prefers RFC-9421 signatures over draft-cavage.
const FEPRFC9421 = "https://w3id.org/fep/9091"

// PrefersRFC9421 reports whether an actor's implements list signals
// FEPRFC9421.
func PrefersRFC9421(actorRaw []byte) bool {
	for _, id := range ImplementedFeps(actorRaw) {
		if id == FEPRFC9421 {
			return true
		}
	}
	return false
}
