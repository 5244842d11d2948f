// Package portable implements FEP-ef61 portable objects: ap://DID
// identifiers, gateway selection, compatible-ID rewriting, and
// authority-preserving verification, per spec.md §4.10.
package portable

import (
	"fmt"
	"strings"

	"github.com/klppl/apfed/internal/idurl"
	"github.com/klppl/apfed/internal/proof"
)

// GatewayError reports a problem selecting or validating a gateway list.
type GatewayError struct {
	Reason string
}

func (e *GatewayError) Error() string { return "portable gateway: " + e.Reason }

// SelectGateway picks the first gateway from a portable actor's published
// list, per spec.md §4.10 ("the first being primary").
func SelectGateway(gateways []idurl.HttpUrl) (idurl.HttpUrl, error) {
	if len(gateways) == 0 {
		return idurl.HttpUrl{}, &GatewayError{Reason: "no gateways published"}
	}
	return gateways[0], nil
}

// Rewrite computes the compatible HTTPS id a gateway serves a canonical
// ap:// object at, per spec.md §4.2/§4.10.
func Rewrite(gateway idurl.HttpUrl, canonical idurl.ApUrl) string {
	return idurl.CompatibleID(gateway, canonical)
}

// TrustedOrigins is the caller-supplied allowlist from
// fetch_object(fep_ef61_trusted_origins), per spec.md §4.10: origins in
// this set may serve portable objects without an additional origin check
// against the canonical id, because the proof still must verify.
type TrustedOrigins map[idurl.Origin]bool

// NewTrustedOrigins builds a TrustedOrigins set from a slice.
func NewTrustedOrigins(origins []idurl.Origin) TrustedOrigins {
	set := make(TrustedOrigins, len(origins))
	for _, o := range origins {
		set[o] = true
	}
	return set
}

// Allows reports whether origin is in the trusted set.
func (t TrustedOrigins) Allows(origin idurl.Origin) bool {
	return t[origin]
}

// CheckGatewayOrigin performs the "additional origin check against the
// canonical id" spec.md §4.10 requires for origins not on the caller's
// trusted-origins allowlist: the URL a portable object was actually served
// from must conform to the compatible-ID convention for the canonical
// ap:// id (ap://did/.../x -> https://G/.well-known/apgateway/did/.../x).
// Trusted origins skip this call entirely; the cryptographic proof check
// in VerifyPortableObject still runs either way.
func CheckGatewayOrigin(finalURL string, canonical idurl.ApUrl) error {
	want := "/.well-known/apgateway/" + canonical.Authority.Did()
	if canonical.Path != "" {
		want += "/" + canonical.Path
	}

	fetched, err := idurl.ParseHttpUrl(finalURL)
	if err != nil {
		return fmt.Errorf("portable: fetched url invalid: %w", err)
	}
	if !strings.HasPrefix(fetched.URL().Path, want) {
		return &GatewayError{
			Reason: fmt.Sprintf("served url %q does not match compatible id %q for canonical id %s",
				finalURL, want, canonical.Canonical()),
		}
	}
	return nil
}

// VerifyPortableObject checks that a fetched document's integrity proof
// authorizes its canonical ap:// id: the proof's verificationMethod origin
// MUST equal the DID authority of the canonical id, per spec.md §4.10.
// Cross-origin hosting (fetched from any gateway) is explicitly permitted
// because the binding is cryptographic, not DNS-based.
func VerifyPortableObject(doc map[string]interface{}, canonical idurl.ApUrl, key proof.VerifyKey) error {
	proofField, ok := doc["proof"]
	if !ok {
		return &GatewayError{Reason: "portable object missing integrity proof"}
	}
	proofMap, ok := proofField.(map[string]interface{})
	if !ok {
		return &GatewayError{Reason: "proof field is not an object"}
	}
	vm, _ := proofMap["verificationMethod"].(string)
	if vm == "" {
		return &GatewayError{Reason: "proof missing verificationMethod"}
	}

	parsedVM, err := idurl.ParseVerificationMethod(vm)
	if err != nil {
		return fmt.Errorf("portable: parse verificationMethod: %w", err)
	}
	if parsedVM.Origin() != canonical.Origin() {
		return &GatewayError{
			Reason: fmt.Sprintf("verificationMethod origin %s does not match canonical authority %s",
				parsedVM.Origin(), canonical.Origin()),
		}
	}

	if err := proof.VerifyProof(doc, key); err != nil {
		return fmt.Errorf("portable: %w", err)
	}
	return nil
}
