// Package crypto implements the signature and hashing primitives the
// federation core builds everything else on: RSA-SHA256, Ed25519,
// Keccak-256 (for EIP-191), SHA-256/512, and multikey encode/decode.
//
// Every verify function returns an explicit bool/error — none of them
// use panics or exceptions for control flow, per the "no exceptions
// used for control flow" rule on signature verification.
package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
)

// KeyFormatError is returned when key material cannot be decoded because of
// a bad prefix, wrong length, or unsupported curve identifier.
type KeyFormatError struct {
	Reason string
}

func (e *KeyFormatError) Error() string { return "key format: " + e.Reason }

// Multicodec prefixes, varint-encoded per the multicodec table. These are
// the only two codes this SDK needs to emit or accept.
const (
	codecEd25519Pub = 0xed
	codecRSAPub     = 0x1205
)

func Sha256(b []byte) [32]byte { return sha256.Sum256(b) }
func Sha512(b []byte) [64]byte { return sha512.Sum512(b) }

// Keccak256 hashes b with Keccak-256 (NOT SHA3-256) as used by EIP-191.
func Keccak256(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(b))
	return out
}

// RSASign signs msg's SHA-256 digest with sk using PKCS#1 v1.5.
func RSASign(sk *rsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return rsa.SignPKCS1v15(rand.Reader, sk, stdcrypto.SHA256, digest[:])
}

// RSAVerify reports whether sig is a valid PKCS#1 v1.5 RSA-SHA256 signature
// of msg under pk. It never panics; malformed input yields false.
func RSAVerify(pk *rsa.PublicKey, msg, sig []byte) bool {
	digest := sha256.Sum256(msg)
	return rsa.VerifyPKCS1v15(pk, stdcrypto.SHA256, digest[:], sig) == nil
}

// Ed25519Sign signs msg with sk.
func Ed25519Sign(sk ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(sk, msg)
}

// Ed25519Verify reports whether sig is a valid Ed25519 signature of msg
// under pk.
func Ed25519Verify(pk ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pk, msg, sig)
}

// MultikeyEncode encodes a public key as a multibase (base58btc, "z...")
// multicodec string. Only RSA and Ed25519 public keys are supported.
func MultikeyEncode(pub any) (string, error) {
	var codec uint64
	var raw []byte
	switch k := pub.(type) {
	case ed25519.PublicKey:
		codec = codecEd25519Pub
		raw = []byte(k)
	case *rsa.PublicKey:
		codec = codecRSAPub
		der, err := x509.MarshalPKIXPublicKey(k)
		if err != nil {
			return "", fmt.Errorf("marshal rsa public key: %w", err)
		}
		raw = der
	default:
		return "", &KeyFormatError{Reason: "unsupported public key type"}
	}

	prefixed := append(varintPrefix(codec), raw...)
	enc, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("multibase encode: %w", err)
	}
	return enc, nil
}

// MultikeyDecode decodes a "z..." multibase multikey string back into a
// public key. The concrete type is either ed25519.PublicKey or
// *rsa.PublicKey depending on the encoded multicodec prefix.
func MultikeyDecode(s string) (any, error) {
	if s == "" {
		return nil, &KeyFormatError{Reason: "empty multikey string"}
	}
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return nil, &KeyFormatError{Reason: "invalid multibase: " + err.Error()}
	}
	if enc != multibase.Base58BTC {
		return nil, &KeyFormatError{Reason: "unsupported multibase encoding"}
	}
	codec, n, err := readVarint(data)
	if err != nil {
		return nil, &KeyFormatError{Reason: "invalid multicodec prefix"}
	}
	rest := data[n:]
	switch codec {
	case codecEd25519Pub:
		if len(rest) != ed25519.PublicKeySize {
			return nil, &KeyFormatError{Reason: "bad ed25519 key length"}
		}
		return ed25519.PublicKey(rest), nil
	case codecRSAPub:
		pub, err := x509.ParsePKIXPublicKey(rest)
		if err != nil {
			return nil, &KeyFormatError{Reason: "bad rsa key encoding: " + err.Error()}
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, &KeyFormatError{Reason: "rsa multicodec did not contain an rsa key"}
		}
		return rsaPub, nil
	default:
		return nil, &KeyFormatError{Reason: fmt.Sprintf("unknown multicodec 0x%x", codec)}
	}
}

// Fingerprint returns a stable, short identifier for a public key: the
// base58btc encoding of its SHA-256 digest. Used for logging and as a
// cache key component, never as a security check.
func Fingerprint(pub any) (string, error) {
	enc, err := MultikeyEncode(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(enc))
	return base58.Encode(sum[:]), nil
}

// varintPrefix encodes a multicodec code as an unsigned LEB128 varint.
func varintPrefix(code uint64) []byte {
	var buf []byte
	for {
		b := byte(code & 0x7f)
		code >>= 7
		if code != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if code == 0 {
			break
		}
	}
	return buf
}

func readVarint(data []byte) (uint64, int, error) {
	var x uint64
	var s uint
	for i, b := range data {
		if i >= 10 {
			return 0, 0, fmt.Errorf("varint too long")
		}
		if b < 0x80 {
			return x | uint64(b)<<s, i + 1, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0, fmt.Errorf("truncated varint")
}

// PEM helpers, grounded on the teacher's internal/ap/keys.go.

// GenerateRSAKeyPair generates a fresh 2048-bit RSA key pair.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// GenerateEd25519KeyPair generates a fresh Ed25519 key pair.
func GenerateEd25519KeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// EncodeRSAPublicPEM encodes an RSA public key as an SPKI PEM block.
func EncodeRSAPublicPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// EncodeRSAPrivatePEM encodes an RSA private key as a PKCS#1 PEM block.
func EncodeRSAPrivatePEM(sk *rsa.PrivateKey) string {
	der := x509.MarshalPKCS1PrivateKey(sk)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
}

// DecodeRSAPublicPEM parses a PEM-encoded RSA public key (SPKI or PKCS#1).
func DecodeRSAPublicPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, &KeyFormatError{Reason: "invalid PEM"}
	}
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, &KeyFormatError{Reason: "PEM did not contain an RSA public key"}
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	return nil, &KeyFormatError{Reason: "unrecognized RSA public key encoding"}
}

// DecodeRSAPrivatePEM parses a PEM-encoded PKCS#1 RSA private key.
func DecodeRSAPrivatePEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, &KeyFormatError{Reason: "invalid PEM"}
	}
	sk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, &KeyFormatError{Reason: "bad PKCS#1 private key: " + err.Error()}
	}
	return sk, nil
}
