// Package activitypub implements the typed AS2 vocabulary surface this core
// exposes to collaborators: the duck-typing core type classifier, audience
// expansion, and mention/hashtag/attachment normalization described in
// spec.md §3 and §4.9.
package activitypub

import (
	"github.com/tidwall/gjson"
)

// CoreType is the duck-typed classification of an arbitrary JSON-LD
// document, per spec.md §3.
type CoreType int

const (
	TypeOther CoreType = iota
	TypeActor
	TypeVerificationMethod
	TypeCollection
	TypeCollectionPage
	TypeActivity
	TypeTombstone
	TypeLink
	TypeObject
)

func (t CoreType) String() string {
	switch t {
	case TypeActor:
		return "Actor"
	case TypeVerificationMethod:
		return "VerificationMethod"
	case TypeCollection:
		return "Collection"
	case TypeCollectionPage:
		return "CollectionPage"
	case TypeActivity:
		return "Activity"
	case TypeTombstone:
		return "Tombstone"
	case TypeLink:
		return "Link"
	case TypeObject:
		return "Object"
	default:
		return "Other"
	}
}

// activityVerbs is the AS2 verb vocabulary that qualifies a document with
// both "actor" and "type" as an Activity, per spec.md §3.
var activityVerbs = map[string]bool{
	"Accept": true, "Add": true, "Announce": true, "Arrive": true,
	"Block": true, "Create": true, "Delete": true, "Dislike": true,
	"Flag": true, "Follow": true, "Ignore": true, "Invite": true,
	"Join": true, "Leave": true, "Like": true, "Listen": true,
	"Move": true, "Offer": true, "Question": true, "Reject": true,
	"Read": true, "Remove": true, "TentativeAccept": true,
	"TentativeReject": true, "Travel": true, "Undo": true, "Update": true,
	"View": true,
}

// Classify applies the duck-typing priority order from spec.md §3: Actor >
// VerificationMethod > Collection > Activity > Tombstone > Link > Object.
// The ordering is load-bearing — it prevents type-confusion attacks where a
// document satisfies more than one predicate.
func Classify(raw []byte) CoreType {
	doc := gjson.ParseBytes(raw)

	hasInbox := doc.Get("inbox").Exists()
	hasPublicKey := doc.Get("publicKey").Exists()
	if hasInbox || hasPublicKey {
		return TypeActor
	}

	hasMultibase := doc.Get("publicKeyMultibase").Exists()
	hasPem := doc.Get("publicKeyPem").Exists()
	if (hasMultibase || hasPem) && !hasInbox {
		return TypeVerificationMethod
	}

	for _, field := range []string{"items", "orderedItems", "first", "last", "next", "prev", "current", "partOf"} {
		if doc.Get(field).Exists() {
			if doc.Get("partOf").Exists() && !doc.Get("items").Exists() && !doc.Get("orderedItems").Exists() {
				return TypeCollectionPage
			}
			return TypeCollection
		}
	}

	actor := doc.Get("actor")
	typ := topType(doc)
	if actor.Exists() && activityVerbs[typ] {
		return TypeActivity
	}

	if typ == "Tombstone" {
		return TypeTombstone
	}

	if doc.Get("href").Exists() && !doc.Get("id").Exists() {
		return TypeLink
	}

	return TypeObject
}

// topType extracts "type" tolerating both a bare string and a JSON-LD array
// of type terms, returning the first entry in the array case.
func topType(doc gjson.Result) string {
	t := doc.Get("type")
	if !t.Exists() {
		return ""
	}
	if t.IsArray() {
		arr := t.Array()
		if len(arr) == 0 {
			return ""
		}
		return arr[0].String()
	}
	return t.String()
}

// ClassifyMap is a convenience wrapper for callers that already hold a
// decoded map (e.g. after JCS canonicalization) instead of raw bytes.
func ClassifyMap(doc map[string]interface{}) (CoreType, error) {
	raw, err := marshalDeterministic(doc)
	if err != nil {
		return TypeOther, err
	}
	return Classify(raw), nil
}
