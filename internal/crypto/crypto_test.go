package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSASignVerifyRoundtrip(t *testing.T) {
	sk, err := GenerateRSAKeyPair()
	require.NoError(t, err)

	msg := []byte(`{"type":"Like","id":"https://a.example/1"}`)
	sig, err := RSASign(sk, msg)
	require.NoError(t, err)
	require.True(t, RSAVerify(&sk.PublicKey, msg, sig))

	tampered := append([]byte{}, msg...)
	tampered[0] ^= 0xff
	require.False(t, RSAVerify(&sk.PublicKey, tampered, sig))

	tamperedSig := append([]byte{}, sig...)
	tamperedSig[0] ^= 0xff
	require.False(t, RSAVerify(&sk.PublicKey, msg, tamperedSig))
}

func TestEd25519SignVerifyRoundtrip(t *testing.T) {
	pub, priv, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("hello federation")
	sig := Ed25519Sign(priv, msg)
	require.True(t, Ed25519Verify(pub, msg, sig))

	tampered := append([]byte{}, sig...)
	tampered[0] ^= 0xff
	require.False(t, Ed25519Verify(pub, msg, tampered))
}

func TestMultikeyEd25519Roundtrip(t *testing.T) {
	pub, _, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	enc, err := MultikeyEncode(pub)
	require.NoError(t, err)
	require.True(t, enc[0] == 'z')

	decoded, err := MultikeyDecode(enc)
	require.NoError(t, err)
	require.Equal(t, pub, decoded.(ed25519.PublicKey))
}

func TestMultikeyRSARoundtrip(t *testing.T) {
	sk, err := GenerateRSAKeyPair()
	require.NoError(t, err)

	enc, err := MultikeyEncode(&sk.PublicKey)
	require.NoError(t, err)

	decoded, err := MultikeyDecode(enc)
	require.NoError(t, err)
	require.True(t, sk.PublicKey.Equal(decoded))
}

func TestMultikeyDecodeBadPrefix(t *testing.T) {
	_, err := MultikeyDecode("not-a-multikey")
	require.Error(t, err)
	var kfe *KeyFormatError
	require.ErrorAs(t, err, &kfe)
}

func TestRSAPemRoundtrip(t *testing.T) {
	sk, err := GenerateRSAKeyPair()
	require.NoError(t, err)

	pubPEM, err := EncodeRSAPublicPEM(&sk.PublicKey)
	require.NoError(t, err)
	privPEM := EncodeRSAPrivatePEM(sk)

	pub2, err := DecodeRSAPublicPEM(pubPEM)
	require.NoError(t, err)
	require.True(t, sk.PublicKey.Equal(pub2))

	priv2, err := DecodeRSAPrivatePEM(privPEM)
	require.NoError(t, err)
	require.True(t, sk.Equal(priv2))
}
