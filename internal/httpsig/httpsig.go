// Package httpsig implements the federation core's HTTP message signature
// engine: draft-cavage parse/build/verify (via go-fed/httpsig) and a native
// RFC-9421 parser/verifier, unified behind one verify_request contract.
package httpsig

import (
	"crypto/ed25519"
	"crypto/rsa"
	"net/http"
	"time"
)

// SigError is the sum type of everything verify_request can fail with. The
// Kind field is what callers switch on — never the error string — per
// spec.md §9 ("the retry/no-retry decision is encoded in the error variant,
// not recovered by string matching").
type SigErrorKind int

const (
	KindMalformed SigErrorKind = iota
	KindKeyIdInvalid
	KindExpired
	KindDigestMismatch
	KindCoverageInsufficient
	KindCrypto
)

func (k SigErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "Malformed"
	case KindKeyIdInvalid:
		return "KeyIdInvalid"
	case KindExpired:
		return "Expired"
	case KindDigestMismatch:
		return "DigestMismatch"
	case KindCoverageInsufficient:
		return "CoverageInsufficient"
	case KindCrypto:
		return "Crypto"
	default:
		return "Unknown"
	}
}

type SigError struct {
	Kind   SigErrorKind
	Detail string
}

func (e *SigError) Error() string { return e.Kind.String() + ": " + e.Detail }

func newErr(kind SigErrorKind, detail string) *SigError { return &SigError{Kind: kind, Detail: detail} }

// VerifiedBy is returned on successful verification: the key id that signed
// the request and which wire format was used.
type VerifiedBy struct {
	KeyID  string
	Format WireFormat
}

type WireFormat int

const (
	FormatDraftCavage WireFormat = iota
	FormatRFC9421
)

// MaxSkew bounds how far a signature's created/expires timestamps may drift
// from the verifier's clock, per spec.md §4.4 ("created within ±5 minutes").
const MaxSkew = 5 * time.Minute

// PublicKey is a tagged union of the key types verify_request accepts.
type PublicKey struct {
	RSA     *rsa.PublicKey
	Ed25519 ed25519.PublicKey
}

// KeyResolver looks up the public key owning keyId. It may perform network
// I/O (an actor fetch) — verify_request treats it as an injected dependency,
// per spec.md §4.4 ("resolve_key: keyId -> PublicKey is injected").
type KeyResolver func(keyID string) (PublicKey, error)

// VerifyRequest implements the common contract from spec.md §4.4: detect
// which wire format the request used (Signature-Input present => RFC-9421,
// else Signature/Authorization with cavage-style params => draft-cavage),
// then dispatch to the matching verifier.
func VerifyRequest(req *http.Request, body []byte, resolve KeyResolver) (*VerifiedBy, error) {
	if req.Header.Get("Signature-Input") != "" {
		return verifyRFC9421(req, body, resolve)
	}
	if req.Header.Get("Signature") != "" || req.Header.Get("Authorization") != "" {
		return verifyCavage(req, body, resolve)
	}
	return nil, newErr(KindMalformed, "no Signature or Signature-Input header present")
}
