package crypto

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Blake2b512 hashes b with BLAKE2b-512, used by MitraJcsEd25519Signature2022.
func Blake2b512(b []byte) ([]byte, error) {
	sum := blake2b.Sum512(b)
	return sum[:], nil
}

// Eip191Hash computes the EIP-191 personal-message digest (Keccak-256 of the
// "\x19Ethereum Signed Message:\n<len>" prefix plus the payload) used by
// MitraJcsEip191Signature2022.
func Eip191Hash(msg []byte) [32]byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256Hash(append([]byte(prefixed), msg...))
}

// Secp256k1Sign produces a 65-byte recoverable EIP-191 signature over msg's
// EIP-191 digest using the given secp256k1 private key (32 raw bytes).
func Secp256k1Sign(skBytes, msg []byte) ([]byte, error) {
	sk, err := ethcrypto.ToECDSA(skBytes)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 private key: %w", err)
	}
	digest := Eip191Hash(msg)
	sig, err := ethcrypto.Sign(digest[:], sk)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 sign: %w", err)
	}
	return sig, nil
}

// Secp256k1Verify recovers the signer's address from a 65-byte recoverable
// signature and compares it against the expected Ethereum-style address
// (20 bytes) derived from the verification key. Returns false rather than
// erroring on any malformed input.
func Secp256k1Verify(expectedAddr [20]byte, msg, sig []byte) bool {
	if len(sig) != 65 {
		return false
	}
	digest := Eip191Hash(msg)
	// go-ethereum expects the recovery id in the last byte as 0/1.
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return false
	}
	addr := ethcrypto.PubkeyToAddress(*pub)
	return addr == expectedAddr
}
