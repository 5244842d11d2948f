package idurl

import "fmt"

// VerificationMethod identifies the owner of a signing key: either an
// HttpUrl (key owned by an HTTP actor) or a DidUrl (key owned by a DID
// subject). Exactly one of Http/Did is populated.
type VerificationMethod struct {
	Http    *HttpUrl
	Did     *DidUrl
	IsHttp  bool
}

// ParseVerificationMethod parses s as whichever form applies.
func ParseVerificationMethod(s string) (VerificationMethod, error) {
	if len(s) >= 4 && s[:4] == "did:" {
		d, err := ParseDidUrl(s)
		if err != nil {
			return VerificationMethod{}, fmt.Errorf("parse did verification method: %w", err)
		}
		return VerificationMethod{Did: &d}, nil
	}
	h, err := ParseHttpUrl(s)
	if err != nil {
		return VerificationMethod{}, fmt.Errorf("parse http verification method: %w", err)
	}
	return VerificationMethod{Http: &h, IsHttp: true}, nil
}

// Origin returns the origin of the verification method: scheme+host+port
// for HTTP, DID-method+method-specific-id for DID.
func (v VerificationMethod) Origin() Origin {
	if v.IsHttp {
		return v.Http.Origin()
	}
	return v.Did.Origin()
}

func (v VerificationMethod) String() string {
	if v.IsHttp {
		return v.Http.String()
	}
	return v.Did.String()
}

// AuthorizesOrigin reports whether this verification method's origin
// matches the origin of an activity's actor / object's attributedTo, per
// the invariant in spec.md §3: "the origin of a verification method used to
// authorize an activity MUST equal the origin of the activity's actor /
// object's attributedTo".
func (v VerificationMethod) AuthorizesOrigin(subjectID string) bool {
	subjOrigin, err := subjectOrigin(subjectID)
	if err != nil {
		return false
	}
	return v.Origin() == subjOrigin
}

// subjectOrigin computes the origin of an actor/object id string, whether it
// is an HTTP URL or an ap:// portable identifier.
func subjectOrigin(id string) (Origin, error) {
	if len(id) >= 5 && id[:5] == "ap://" {
		a, err := ParseApUrl(id)
		if err != nil {
			return Origin{}, err
		}
		return a.Origin(), nil
	}
	u, err := ParseHttpUrl(id)
	if err != nil {
		return Origin{}, err
	}
	return u.Origin(), nil
}
