package httpsig

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	apcrypto "github.com/klppl/apfed/internal/crypto"
)

func TestVerifyRequestCavageHappyPath(t *testing.T) {
	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	body := []byte(`{"type":"Like","id":"https://a.example/1","actor":"https://a.example/alice"}`)
	req := httptest.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader(body))
	req.Host = "b.example"

	keyID := "https://a.example/alice#ed"
	require.NoError(t, SignCavage(req, body, keyID, sk))

	req2, _ := http.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader(body))
	req2.Host = "b.example"
	for k, v := range req.Header {
		req2.Header[k] = v
	}

	resolver := func(kid string) (PublicKey, error) {
		require.Equal(t, keyID, kid)
		return PublicKey{RSA: &sk.PublicKey}, nil
	}

	vb, err := VerifyRequest(req2, body, resolver)
	require.NoError(t, err)
	require.Equal(t, keyID, vb.KeyID)
	require.Equal(t, FormatDraftCavage, vb.Format)
}

func TestVerifyRequestCavageDigestMismatch(t *testing.T) {
	sk, err := apcrypto.GenerateRSAKeyPair()
	require.NoError(t, err)

	body := []byte(`{"type":"Like"}`)
	req := httptest.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader(body))
	req.Host = "b.example"
	require.NoError(t, SignCavage(req, body, "https://a.example/alice#ed", sk))

	tampered := append([]byte{}, body...)
	tampered[0] = '['

	resolver := func(kid string) (PublicKey, error) {
		return PublicKey{RSA: &sk.PublicKey}, nil
	}

	_, err = VerifyRequest(req, tampered, resolver)
	require.Error(t, err)
	var se *SigError
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindDigestMismatch, se.Kind)
}

func TestVerifyRequestNoSignatureHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://b.example/x", nil)
	_, err := VerifyRequest(req, nil, func(string) (PublicKey, error) { return PublicKey{}, nil })
	require.Error(t, err)
	var se *SigError
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindMalformed, se.Kind)
}
