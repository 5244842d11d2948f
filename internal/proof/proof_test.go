package proof

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apcrypto "github.com/klppl/apfed/internal/crypto"
)

func TestSignVerifyRoundtripEddsaJcs2022(t *testing.T) {
	pub, priv, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"type":    "Note",
		"id":      "https://a/1",
		"content": "hi",
	}
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:        SuiteEddsaJcs2022,
		Created:            time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		ProofPurpose:       "assertionMethod",
		VerificationMethod: "https://a/alice#ed25519-key",
	}, Signer{Ed25519: priv})
	require.NoError(t, err)
	require.NotNil(t, signed["proof"])

	require.NoError(t, VerifyProof(signed, VerifyKey{Ed25519: pub}))

	mutated := map[string]interface{}{}
	for k, v := range signed {
		mutated[k] = v
	}
	mutated["content"] = "HI"
	err = VerifyProof(mutated, VerifyKey{Ed25519: pub})
	require.Error(t, err)
	var pie *ProofInvalidError
	require.ErrorAs(t, err, &pie)
}

func TestVerifyProofRejectsWrongKey(t *testing.T) {
	_, priv, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	otherPub, _, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{"type": "Note", "id": "https://a/1"}
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:        SuiteEddsaJcs2022,
		ProofPurpose:       "assertionMethod",
		VerificationMethod: "https://a/alice#ed25519-key",
	}, Signer{Ed25519: priv})
	require.NoError(t, err)

	err = VerifyProof(signed, VerifyKey{Ed25519: otherPub})
	require.Error(t, err)
}

func TestSignVerifyRoundtripMitraJcsRsa(t *testing.T) {
	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{"type": "Note", "id": "https://a/1", "content": "hi"}
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:        SuiteMitraJcsRsa,
		ProofPurpose:       "assertionMethod",
		VerificationMethod: "https://a/alice#rsa-key",
	}, Signer{RSA: sk})
	require.NoError(t, err)

	require.NoError(t, VerifyProof(signed, VerifyKey{RSA: &sk.PublicKey}))
}

func TestMitraJcsRsaRejectsTamperedProofPurpose(t *testing.T) {
	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{"type": "Note", "id": "https://a/1", "content": "hi"}
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:        SuiteMitraJcsRsa,
		ProofPurpose:       "assertionMethod",
		VerificationMethod: "https://a/alice#rsa-key",
	}, Signer{RSA: sk})
	require.NoError(t, err)

	proofMap := signed["proof"].(map[string]interface{})
	proofMap["proofPurpose"] = "authentication"

	err = VerifyProof(signed, VerifyKey{RSA: &sk.PublicKey})
	require.Error(t, err)
}

func TestSignVerifyRoundtripMitraJcsEd25519(t *testing.T) {
	pub, priv, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{"type": "Note", "id": "https://a/1", "content": "hi"}
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:        SuiteMitraJcsEd25519,
		ProofPurpose:       "assertionMethod",
		VerificationMethod: "https://a/alice#ed25519-key",
	}, Signer{Ed25519: priv})
	require.NoError(t, err)
	require.NoError(t, VerifyProof(signed, VerifyKey{Ed25519: pub}))

	proofMap := signed["proof"].(map[string]interface{})
	proofMap["verificationMethod"] = "https://evil.example/mallory#ed25519-key"
	err = VerifyProof(signed, VerifyKey{Ed25519: pub})
	require.Error(t, err)
}

func TestContextInjectionAsymmetry(t *testing.T) {
	pub, priv, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	doc := map[string]interface{}{"type": "Note", "id": "https://a/1"}
	// A signer MAY inject @context (verifiers must tolerate either).
	signed, err := SignObject(doc, ProofOptions{
		Cryptosuite:         SuiteEddsaJcs2022,
		ProofPurpose:        "assertionMethod",
		VerificationMethod:  "https://a/alice#ed25519-key",
		InjectContext:       true,
	}, Signer{Ed25519: priv})
	require.NoError(t, err)
	require.NoError(t, VerifyProof(signed, VerifyKey{Ed25519: pub}))
}
