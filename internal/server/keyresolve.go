package server

import (
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/tidwall/gjson"

	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/httpsig"
)

// publicKeyFromActor extracts the public key matching keyID out of a raw
// actor document, checking the `publicKey` entries (RSA PEM) and the
// `assertionMethod` entries (multibase multikey), per spec.md §3's actor
// shape ("zero or more publicKey / assertionMethod / authentication
// entries").
func publicKeyFromActor(raw []byte, keyID string) (httpsig.PublicKey, error) {
	doc := gjson.ParseBytes(raw)

	if pk, ok := findPublicKeyPEM(doc.Get("publicKey"), keyID); ok {
		sk, err := apcrypto.DecodeRSAPublicPEM(pk)
		if err != nil {
			return httpsig.PublicKey{}, fmt.Errorf("server: decode publicKeyPem for %q: %w", keyID, err)
		}
		return httpsig.PublicKey{RSA: sk}, nil
	}

	if mb, ok := findMultikey(doc.Get("assertionMethod"), keyID); ok {
		pub, err := apcrypto.MultikeyDecode(mb)
		if err != nil {
			return httpsig.PublicKey{}, fmt.Errorf("server: decode multikey for %q: %w", keyID, err)
		}
		switch k := pub.(type) {
		case ed25519.PublicKey:
			return httpsig.PublicKey{Ed25519: k}, nil
		case *rsa.PublicKey:
			return httpsig.PublicKey{RSA: k}, nil
		default:
			return httpsig.PublicKey{}, fmt.Errorf("server: unsupported multikey type for %q", keyID)
		}
	}

	return httpsig.PublicKey{}, fmt.Errorf("server: no key matching %q on actor document", keyID)
}

func findPublicKeyPEM(v gjson.Result, keyID string) (string, bool) {
	if !v.Exists() {
		return "", false
	}
	entries := v.Array()
	if !v.IsArray() {
		entries = []gjson.Result{v}
	}
	for _, e := range entries {
		if e.Get("id").String() == keyID {
			if pem := e.Get("publicKeyPem").String(); pem != "" {
				return pem, true
			}
		}
	}
	return "", false
}

func findMultikey(v gjson.Result, keyID string) (string, bool) {
	if !v.Exists() {
		return "", false
	}
	entries := v.Array()
	if !v.IsArray() {
		entries = []gjson.Result{v}
	}
	for _, e := range entries {
		if e.Get("id").String() == keyID {
			if mb := e.Get("publicKeyMultibase").String(); mb != "" {
				return mb, true
			}
		}
	}
	return "", false
}
