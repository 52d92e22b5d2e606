package config

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// vaultNonce is the fixed 12-byte AES-GCM nonce, the ASCII bytes of
// "intmaxmining". Per spec.md §3 and §6, a fixed nonce is acceptable here
// because each vault is encrypted exactly once per password: if the vault
// is rewritten after a password change, both ciphertext and password change
// together, so nonce reuse under a fixed key never occurs. Described
// further in ../DESIGN.md under C11.
var vaultNonce = []byte("intmaxmining")

// Seal encrypts plaintext under AES-256-GCM with key = keccak256(password)
// and the fixed vault nonce.
func Seal(plaintext []byte, password string) ([]byte, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, vaultNonce, plaintext, nil), nil
}

// Unseal reverses Seal.
func Unseal(sealed []byte, password string) ([]byte, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, vaultNonce, sealed, nil)
}

func newGCM(password string) (cipher.AEAD, error) {
	key := crypto.Keccak256([]byte(password))
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not construct aes cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(vaultNonce))
	if err != nil {
		return nil, errors.Wrap(err, "could not construct gcm mode")
	}
	return gcm, nil
}
