package activitypub

import (
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	maxAliases        = 10
	maxIdentityProofs = 10
)

// ActorValidationError reports a violation of the actor invariants in
// spec.md §3/§4.6.
type ActorValidationError struct {
	Reason string
}

func (e *ActorValidationError) Error() string { return "actor invalid: " + e.Reason }

// ValidatedActor is an Actor document after the checks in spec.md §4.6:
// key owners canonical to the actor id, aliases deduplicated, count limits
// enforced.
type ValidatedActor struct {
	ID      string
	Inbox   string
	Aliases []string
}

// ValidateActor applies the fetch_actor checks beyond plain classification:
// every publicKey's owner must equal the actor's id, aliases are
// deduplicated and capped at 10, and identity proofs are capped at 10.
func ValidateActor(raw []byte) (ValidatedActor, error) {
	doc := gjson.ParseBytes(raw)

	id := doc.Get("id").String()
	if id == "" {
		return ValidatedActor{}, &ActorValidationError{Reason: "missing id"}
	}

	for _, owner := range publicKeyOwners(doc) {
		if owner != "" && owner != id {
			return ValidatedActor{}, &ActorValidationError{
				Reason: fmt.Sprintf("publicKey owner %q does not match actor id %q", owner, id),
			}
		}
	}

	aliases := dedupStrings(stringArray(doc.Get("alsoKnownAs")))
	if len(aliases) > maxAliases {
		return ValidatedActor{}, &ActorValidationError{Reason: "too many aliases"}
	}

	proofs := doc.Get("assertionMethod")
	if proofs.Exists() && proofs.IsArray() && len(proofs.Array()) > maxIdentityProofs {
		return ValidatedActor{}, &ActorValidationError{Reason: "too many identity proofs"}
	}

	return ValidatedActor{ID: id, Inbox: doc.Get("inbox").String(), Aliases: aliases}, nil
}

func publicKeyOwners(doc gjson.Result) []string {
	pk := doc.Get("publicKey")
	if !pk.Exists() {
		return nil
	}
	entries := pk.Array()
	if !pk.IsArray() {
		entries = []gjson.Result{pk}
	}
	var owners []string
	for _, e := range entries {
		if owner := e.Get("owner").String(); owner != "" {
			owners = append(owners, owner)
		} else if owner := e.Get("controller").String(); owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners
}

func stringArray(v gjson.Result) []string {
	if !v.Exists() {
		return nil
	}
	if !v.IsArray() {
		return []string{v.String()}
	}
	var out []string
	for _, e := range v.Array() {
		out = append(out, e.String())
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
