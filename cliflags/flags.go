// Package cliflags defines every command-line flag the agent's modes
// share, grounded on validator/flags's package-level cli.Flag variable
// style (one var per flag, reused across subcommands' Flags slices).
package cliflags

import (
	"github.com/urfave/cli/v2"
)

var (
	// NetworkFlag selects which of the four supported networks to run
	// against; required on every mode.
	NetworkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "target network: base, base-sepolia, mainnet, or holesky",
	}

	// DataDirFlag is the directory holding per-network config files and
	// in-flight pipeline status files.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for persisted config, trees, and pipeline status",
		Value: defaultDataDir(),
	}

	// RPCURLFlag overrides the configured RPC endpoint.
	RPCURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "execution-layer JSON-RPC endpoint (env: RPC_URL)",
		EnvVars: []string{"RPC_URL"},
	}

	// MaxGasPriceFlag overrides the configured gas price ceiling, in wei.
	MaxGasPriceFlag = &cli.StringFlag{
		Name:    "max-gas-price-wei",
		Usage:   "gas price ceiling in wei, every signed write blocks above it (env: MAX_GAS_PRICE)",
		EnvVars: []string{"MAX_GAS_PRICE"},
	}

	// MiningUnitFlag overrides the configured per-deposit amount, in wei.
	MiningUnitFlag = &cli.StringFlag{
		Name:    "mining-unit-wei",
		Usage:   "native-token amount deposited per mining cycle, in wei (env: MINING_UNIT)",
		EnvVars: []string{"MINING_UNIT"},
	}

	// MiningTimesFlag overrides the configured number of deposits per
	// address before the mining loop advances to the next key_number.
	MiningTimesFlag = &cli.Uint64Flag{
		Name:    "mining-times",
		Usage:   "number of deposits per derived address before advancing (env: MINING_TIMES)",
		EnvVars: []string{"MINING_TIMES"},
	}

	// WithdrawalPrivateKeyFlag supplies the withdrawal private key directly
	// for a fresh config, rather than generating one interactively.
	WithdrawalPrivateKeyFlag = &cli.StringFlag{
		Name:    "withdrawal-private-key",
		Usage:   "hex-encoded withdrawal private key (env: WITHDRAWAL_PRIVATE_KEY)",
		EnvVars: []string{"WITHDRAWAL_PRIVATE_KEY"},
	}

	// MnemonicFlag recovers the withdrawal private key from a previously
	// backed-up BIP-39 mnemonic, rather than a raw hex key. When init is run
	// with neither this nor -withdrawal-private-key, a fresh mnemonic is
	// generated and printed once for the operator to back up.
	MnemonicFlag = &cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "BIP-39 mnemonic to recover the withdrawal private key from (env: WITHDRAWAL_MNEMONIC)",
		EnvVars: []string{"WITHDRAWAL_MNEMONIC"},
	}

	// EncryptFlag requests the withdrawal key be sealed in the AES-GCM
	// vault rather than stored plaintext.
	EncryptFlag = &cli.BoolFlag{
		Name:    "encrypt",
		Usage:   "seal the withdrawal private key in a password-protected vault (env: ENCRYPT)",
		EnvVars: []string{"ENCRYPT"},
	}

	// ExclusionServerFlag points at the circulation exclusion list server.
	ExclusionServerFlag = &cli.StringFlag{
		Name:  "exclusion-server-url",
		Usage: "base URL of the circulation exclusion list server",
	}

	// LogFormatFlag selects the logrus formatter, same three-way choice
	// the teacher's main.go offers (plus "journald" omitted: this agent
	// ships as a standalone binary, not a systemd unit).
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "log format: text, json, or fluentd",
		Value: "text",
	}

	// LogFileFlag persists logs to disk in addition to stderr.
	LogFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "file to additionally write logs to",
	}

	// ExportFlag names the output path for the export mode.
	ExportFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "output file path for the export mode",
		Value: "mining-export.csv",
	}

	// MetricsAddrFlag binds a local Prometheus /metrics endpoint; left
	// empty, no metrics server runs.
	MetricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus /metrics on, e.g. 127.0.0.1:9090 (empty disables it)",
	}
)

func defaultDataDir() string {
	return "./zkmining-data"
}

// SharedFlags are the flags every mode's command accepts.
var SharedFlags = []cli.Flag{
	NetworkFlag,
	DataDirFlag,
	RPCURLFlag,
	MaxGasPriceFlag,
	LogFormatFlag,
	LogFileFlag,
	MetricsAddrFlag,
}

// MiningFlags extends SharedFlags with mining-loop-specific overrides.
var MiningFlags = append(append([]cli.Flag{}, SharedFlags...),
	MiningUnitFlag,
	MiningTimesFlag,
	WithdrawalPrivateKeyFlag,
	EncryptFlag,
	ExclusionServerFlag,
)

// InitFlags extends MiningFlags with the key-creation-only mnemonic flag.
var InitFlags = append(append([]cli.Flag{}, MiningFlags...),
	MnemonicFlag,
)
