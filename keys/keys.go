// Package keys derives the per-index deposit identities used by the mining
// loop from a single withdrawal private key. Every derived value is a pure
// function of its inputs: the same withdrawal key and index always produce
// the same deposit key, salt, and pubkey hash, on any platform.
package keys

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// saltPrefix and depositKeyPrefix are the fixed 32-byte domain-separation
// constants used in every keccak chain below. Values per the external
// interface spec; never derived, never configurable.
var (
	saltPrefix       = common.HexToHash("0xbf21c6520d666a4167f35c091393809e314f62a8e5cb1c166dd4dcac3abe53ad")
	depositKeyPrefix = common.HexToHash("0x80059c155bb5d835019afc9e979c30cabd98c9d2141e67562b7bd636d7005cbc")

	// scalarFieldModulus is the BN254 scalar field modulus that the wrapper
	// proof's public inputs live in; salts must be reduced into it before
	// being passed to the proof engine.
	scalarFieldModulus, _ = new(big.Int).SetString(
		"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)
)

// Key bundles one withdrawal address together with one of its many derived
// deposit identities.
type Key struct {
	Number            uint64
	DepositPrivateKey *ecdsa.PrivateKey
	DepositAddress    common.Address
	WithdrawalPrivate *ecdsa.PrivateKey
	WithdrawalAddress common.Address
}

// Derive computes deposit_private_key[n] = keccak(keccak(PREFIX || withdrawal_priv) || n_be8)
// and returns the full key bundle for index n.
func Derive(withdrawalPriv *ecdsa.PrivateKey, n uint64) (*Key, error) {
	if withdrawalPriv == nil {
		return nil, errors.New("nil withdrawal private key")
	}
	depositPrivBytes := derivePrivateKeyBytes(withdrawalPriv, n)
	depositPriv, err := crypto.ToECDSA(depositPrivBytes)
	if err != nil {
		return nil, errors.Wrap(err, "could not convert derived bytes to a private key")
	}
	return &Key{
		Number:            n,
		DepositPrivateKey: depositPriv,
		DepositAddress:    crypto.PubkeyToAddress(depositPriv.PublicKey),
		WithdrawalPrivate: withdrawalPriv,
		WithdrawalAddress: crypto.PubkeyToAddress(withdrawalPriv.PublicKey),
	}, nil
}

func derivePrivateKeyBytes(withdrawalPriv *ecdsa.PrivateKey, n uint64) []byte {
	inner := crypto.Keccak256(append(depositKeyPrefix.Bytes(), crypto.FromECDSA(withdrawalPriv)...))
	return crypto.Keccak256(append(inner, beUint64(n)...))
}

// Salt computes salt(priv, nonce) = keccak(keccak(SALT_PREFIX || priv) || nonce_be8)
// reduced into the circuit's scalar field.
func Salt(priv *ecdsa.PrivateKey, nonce uint64) *big.Int {
	inner := crypto.Keccak256(append(saltPrefix.Bytes(), crypto.FromECDSA(priv)...))
	outer := crypto.Keccak256(append(inner, beUint64(nonce)...))
	v := new(big.Int).SetBytes(outer)
	return v.Mod(v, scalarFieldModulus)
}

// Pubkey computes pubkey(priv) = keccak(keccak(SALT_PREFIX || priv)) interpreted
// as a 256-bit unsigned integer.
func Pubkey(priv *ecdsa.PrivateKey) *big.Int {
	inner := crypto.Keccak256(append(saltPrefix.Bytes(), crypto.FromECDSA(priv)...))
	outer := crypto.Keccak256(inner)
	return new(big.Int).SetBytes(outer)
}

func beUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func be32(v *big.Int) [32]byte {
	var out [32]byte
	v.FillBytes(out[:])
	return out
}

// PubkeySaltHash combines a pubkey and a salt into the bytes32 identity used
// both as a deposit leaf's recipient field and, with a zero pubkey, as the
// withdrawal nullifier.
func PubkeySaltHash(pubkey, salt *big.Int) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(append(be32(pubkey)[:], be32(salt)[:]...)))
	return out
}

// ClaimNullifier derives the per-term claim nullifier from a deposit leaf
// hash and its salt, mirroring the inner claim circuit's nullifier
// derivation without re-implementing the circuit itself.
func ClaimNullifier(depositLeafHash [32]byte, salt *big.Int) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(append(append([]byte{}, depositLeafHash[:]...), be32(salt)[:]...)))
	return out
}
