package jcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b":1,"a":2}`))
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestCanonicalizeStripsWhitespace(t *testing.T) {
	out, err := Canonicalize([]byte("{\n  \"a\" : 1\n}"))
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(out))
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	in := []byte(`{"z":[3,1,2],"a":{"y":1,"x":2}}`)
	first, err := Canonicalize(in)
	require.NoError(t, err)
	second, err := Canonicalize(first)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCanonicalizeIntegerNumbers(t *testing.T) {
	out, err := Canonicalize([]byte(`{"n":1.0}`))
	require.NoError(t, err)
	require.Equal(t, `{"n":1}`, string(out))
}

func TestCanonicalizeKeyOrderingIsUTF16(t *testing.T) {
	// A higher code point sorts after "a" in UTF-16 code-unit order.
	out, err := Canonicalize([]byte(`{"ÿ":1,"a":2}`))
	require.NoError(t, err)
	first := string(out)[:6]
	require.Equal(t, `{"a":2`, first)
}
