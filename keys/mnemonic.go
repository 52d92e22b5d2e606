package keys

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// NewMnemonic generates a fresh BIP-39 mnemonic together with the
// withdrawal private key deterministically derived from it, so an operator
// has one human-copyable backup for the single seed that determines every
// deposit address the mining loop will ever derive.
func NewMnemonic() (mnemonic string, withdrawalPriv *ecdsa.PrivateKey, err error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not generate mnemonic entropy")
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not encode mnemonic")
	}
	withdrawalPriv, err = WithdrawalKeyFromMnemonic(mnemonic)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, withdrawalPriv, nil
}

// WithdrawalKeyFromMnemonic recovers the withdrawal private key
// deterministically derived from a BIP-39 mnemonic, the same derivation
// NewMnemonic used to create it.
func WithdrawalKeyFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Wrap(err, "invalid mnemonic")
	}
	priv, err := crypto.ToECDSA(crypto.Keccak256(seed))
	if err != nil {
		return nil, errors.Wrap(err, "could not convert mnemonic seed to a private key")
	}
	return priv, nil
}
