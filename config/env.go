// Package config persists the per-network EnvConfig file (C11) and seals
// the withdrawal private key in an AES-256-GCM vault when encryption is
// requested. Grounded on validator/accounts/v2/wallet.go's per-wallet
// directory layout and password-gated access, adapted from a keystore
// directory of many keys to a single JSON file per network holding one
// withdrawal key, plain or sealed.
package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/internal/atomicfile"
)

// Network is one of the four chains this agent can be pointed at.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkMainnet     Network = "mainnet"
	NetworkHolesky     Network = "holesky"
)

// Valid reports whether n is one of the four supported networks.
func (n Network) Valid() bool {
	switch n {
	case NetworkBase, NetworkBaseSepolia, NetworkMainnet, NetworkHolesky:
		return true
	}
	return false
}

// keysVariant discriminates between a plaintext and an AES-GCM sealed
// withdrawal private key, serialized as a tagged JSON object.
type keysVariant struct {
	Plain     string `json:"plain,omitempty"`     // hex-encoded private key
	Encrypted string `json:"encrypted,omitempty"` // hex-encoded sealed bytes
}

// EnvConfig is the persisted per-network configuration. The gas price
// ceiling and mining unit are serialized as base-10 wei strings (not gwei
// or ether) rather than JSON numbers, so large wei values never round-trip
// through a float64; mining_times is a plain JSON number.
type EnvConfig struct {
	Network           Network `json:"network"`
	RPCURL            string  `json:"rpc_url"`
	MaxGasPriceWei    string  `json:"max_gas_price_wei"`
	WithdrawalAddress string  `json:"withdrawal_address"`
	Keys              keysVariant `json:"keys_variant"`
	MiningUnitWei     string  `json:"mining_unit_wei"`
	MiningTimes       uint64  `json:"mining_times"`
}

// FileName returns the per-network config file name, e.g. "env.base.json".
func FileName(network Network) string {
	return "env." + string(network) + ".json"
}

// Path joins dataDir with the per-network config file name.
func Path(dataDir string, network Network) string {
	return filepath.Join(dataDir, FileName(network))
}

// Load reads and parses a network's EnvConfig from dataDir.
func Load(dataDir string, network Network) (*EnvConfig, error) {
	raw, err := os.ReadFile(Path(dataDir, network))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config for network %s", network)
	}
	var cfg EnvConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "could not parse config json")
	}
	return &cfg, nil
}

// Save atomically persists cfg to dataDir.
func Save(dataDir string, cfg *EnvConfig) error {
	if !cfg.Network.Valid() {
		return errors.Errorf("unknown network %q", cfg.Network)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal config")
	}
	return atomicfile.WriteFile(Path(dataDir, cfg.Network), raw, 0600)
}

// MaxGasPrice parses the configured gas-price ceiling in wei.
func (c *EnvConfig) MaxGasPrice() (*big.Int, bool) {
	v, ok := new(big.Int).SetString(c.MaxGasPriceWei, 10)
	return v, ok
}

// MiningUnit parses the configured per-deposit amount in wei.
func (c *EnvConfig) MiningUnit() (*big.Int, bool) {
	v, ok := new(big.Int).SetString(c.MiningUnitWei, 10)
	return v, ok
}

// SetPlainKey stores priv unencrypted.
func (c *EnvConfig) SetPlainKey(priv *ecdsa.PrivateKey) {
	c.Keys = keysVariant{Plain: hex.EncodeToString(crypto.FromECDSA(priv))}
}

// SetEncryptedKey seals priv under password and stores the sealed bytes.
func (c *EnvConfig) SetEncryptedKey(priv *ecdsa.PrivateKey, password string) error {
	sealed, err := Seal(crypto.FromECDSA(priv), password)
	if err != nil {
		return err
	}
	c.Keys = keysVariant{Encrypted: hex.EncodeToString(sealed)}
	return nil
}

// WithdrawalPrivateKey recovers the withdrawal private key, prompting the
// caller-supplied password function only if the vault is sealed.
func (c *EnvConfig) WithdrawalPrivateKey(passwordFn func() (string, error)) (*ecdsa.PrivateKey, error) {
	switch {
	case c.Keys.Plain != "":
		raw, err := hex.DecodeString(c.Keys.Plain)
		if err != nil {
			return nil, errors.Wrap(err, "could not decode plain key hex")
		}
		return crypto.ToECDSA(raw)
	case c.Keys.Encrypted != "":
		sealed, err := hex.DecodeString(c.Keys.Encrypted)
		if err != nil {
			return nil, errors.Wrap(err, "could not decode sealed key hex")
		}
		password, err := passwordFn()
		if err != nil {
			return nil, errors.Wrap(err, "could not read vault password")
		}
		raw, err := Unseal(sealed, password)
		if err != nil {
			return nil, errors.Wrap(err, "could not unseal withdrawal key, wrong password?")
		}
		return crypto.ToECDSA(raw)
	default:
		return nil, errors.New("config has neither a plain nor encrypted withdrawal key")
	}
}

// ValidateNoDuplicateWithdrawalAddress enforces the cross-network
// uniqueness rule: the same withdrawal address must never be configured on
// two networks, since reusing it would risk nullifier collisions across
// otherwise-independent mixer deployments.
func ValidateNoDuplicateWithdrawalAddress(dataDir string, candidate common.Address, except Network) error {
	for _, n := range []Network{NetworkBase, NetworkBaseSepolia, NetworkMainnet, NetworkHolesky} {
		if n == except {
			continue
		}
		existing, err := Load(dataDir, n)
		if err != nil {
			continue // network not configured yet
		}
		if common.HexToAddress(existing.WithdrawalAddress) == candidate {
			return errors.Errorf("withdrawal address %s is already configured on network %s", candidate.Hex(), n)
		}
	}
	return nil
}
