package portable

import (
	"testing"

	"github.com/stretchr/testify/require"

	apcrypto "github.com/klppl/apfed/internal/crypto"
	"github.com/klppl/apfed/internal/idurl"
	"github.com/klppl/apfed/internal/proof"
)

func TestSelectGatewayPicksFirst(t *testing.T) {
	g1, err := idurl.ParseHttpUrl("https://gw1.example")
	require.NoError(t, err)
	g2, err := idurl.ParseHttpUrl("https://gw2.example")
	require.NoError(t, err)

	got, err := SelectGateway([]idurl.HttpUrl{g1, g2})
	require.NoError(t, err)
	require.Equal(t, g1, got)
}

func TestSelectGatewayErrorsOnEmpty(t *testing.T) {
	_, err := SelectGateway(nil)
	require.Error(t, err)
}

func TestVerifyPortableObjectRejectsForeignVerificationMethod(t *testing.T) {
	pub, _, err := apcrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	canonical, perr := idurl.ParseApUrl("ap://did:key:z6MkhaXgBZD9jvaDjjUBtkDGFRPKCQxqKmXsXaxnVKjLVQ7o/outbox")
	require.NoError(t, perr)

	doc := map[string]interface{}{
		"id": canonical.Canonical(),
		"proof": map[string]interface{}{
			"type":               "DataIntegrityProof",
			"cryptosuite":        string(proof.SuiteEddsaJcs2022),
			"verificationMethod": "https://evil.example/actor#key",
			"proofValue":         "z123",
			"created":            "2024-01-01T00:00:00Z",
			"proofPurpose":       "assertionMethod",
		},
	}

	err = VerifyPortableObject(doc, canonical, proof.VerifyKey{Ed25519: pub})
	require.Error(t, err)
}

func TestCheckGatewayOriginAcceptsCompatibleID(t *testing.T) {
	canonical, err := idurl.ParseApUrl("ap://did:key:z6MkhaXgBZD9jvaDjjUBtkDGFRPKCQxqKmXsXaxnVKjLVQ7o/outbox")
	require.NoError(t, err)

	gateway, err := idurl.ParseHttpUrl("https://gateway.example")
	require.NoError(t, err)
	servedFrom := Rewrite(gateway, canonical)

	require.NoError(t, CheckGatewayOrigin(servedFrom, canonical))
}

func TestCheckGatewayOriginRejectsUnrelatedURL(t *testing.T) {
	canonical, err := idurl.ParseApUrl("ap://did:key:z6MkhaXgBZD9jvaDjjUBtkDGFRPKCQxqKmXsXaxnVKjLVQ7o/outbox")
	require.NoError(t, err)

	err = CheckGatewayOrigin("https://gateway.example/notes/1", canonical)
	require.Error(t, err)
}
