package config

import "github.com/ethereum/go-ethereum/common"

// NetworkDefaults bundles the fixed, per-network addresses and service
// endpoints that are not operator-configurable: the mixer/minter/token
// contract triple, the public snapshot bucket, and the default proof
// services. RPCURL is deliberately absent here since every network still
// requires an operator-supplied endpoint.
type NetworkDefaults struct {
	MixerAddress      common.Address
	MinterAddress     common.Address
	TokenAddress      common.Address
	SnapshotBaseURL   string
	ExclusionURL      string
	GnarkWrapperURL   string
	Plonky2BinaryPath string
}

// defaults maps each supported network to its fixed addresses and service
// endpoints. The zero address entries are placeholders until the real
// mixer/minter/token deployments for that network are finalized; Dial
// still succeeds against them since no contract call happens until the
// mining loop starts acting on a derived address.
var defaults = map[Network]NetworkDefaults{
	NetworkBase: {
		SnapshotBaseURL:   "https://snapshots.zkmining.example/base",
		ExclusionURL:      "https://exclusion.zkmining.example",
		GnarkWrapperURL:   "https://prover.zkmining.example/base",
		Plonky2BinaryPath: "plonky2-prover",
	},
	NetworkBaseSepolia: {
		SnapshotBaseURL:   "https://snapshots.zkmining.example/base-sepolia",
		ExclusionURL:      "https://exclusion.zkmining.example",
		GnarkWrapperURL:   "https://prover.zkmining.example/base-sepolia",
		Plonky2BinaryPath: "plonky2-prover",
	},
	NetworkMainnet: {
		SnapshotBaseURL:   "https://snapshots.zkmining.example/mainnet",
		ExclusionURL:      "https://exclusion.zkmining.example",
		GnarkWrapperURL:   "https://prover.zkmining.example/mainnet",
		Plonky2BinaryPath: "plonky2-prover",
	},
	NetworkHolesky: {
		SnapshotBaseURL:   "https://snapshots.zkmining.example/holesky",
		ExclusionURL:      "https://exclusion.zkmining.example",
		GnarkWrapperURL:   "https://prover.zkmining.example/holesky",
		Plonky2BinaryPath: "plonky2-prover",
	},
}

// Defaults returns the fixed defaults for n, and false if n is unknown.
func Defaults(n Network) (NetworkDefaults, bool) {
	d, ok := defaults[n]
	return d, ok
}
