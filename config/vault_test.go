package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealUnseal_RoundTrip(t *testing.T) {
	plaintext := []byte("super secret private key bytes")
	sealed, err := Seal(plaintext, "correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := Unseal(sealed, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestUnseal_WrongPasswordFails(t *testing.T) {
	sealed, err := Seal([]byte("data"), "password-one")
	require.NoError(t, err)

	_, err = Unseal(sealed, "password-two")
	require.Error(t, err)
}

func TestSeal_DeterministicForSamePasswordAndPlaintext(t *testing.T) {
	a, err := Seal([]byte("data"), "pw")
	require.NoError(t, err)
	b, err := Seal([]byte("data"), "pw")
	require.NoError(t, err)
	require.Equal(t, a, b, "fixed nonce means identical inputs always seal identically")
}
