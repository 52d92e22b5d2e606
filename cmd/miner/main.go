// Package main defines the mining agent's command-line entry point: it
// loads per-network configuration, synchronizes local trees, and drives
// one of the mining, exit, or claim loops against a derived key sequence.
// Grounded on validator/main.go's cli.App construction, formatter
// selection, and panic-recovery shape.
package main

import (
	"bufio"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	runtimeDebug "runtime/debug"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	joonix "github.com/joonix/log"
	ansi "github.com/k0kubun/go-ansi"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	_ "go.uber.org/automaxprocs"

	"github.com/zkmining/miner-cli/agreement"
	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/cliflags"
	"github.com/zkmining/miner-cli/config"
	"github.com/zkmining/miner-cli/cooldown"
	"github.com/zkmining/miner-cli/internal/metrics"
	"github.com/zkmining/miner-cli/keys"
	"github.com/zkmining/miner-cli/mining"
	"github.com/zkmining/miner-cli/proofengine"
	"github.com/zkmining/miner-cli/sync"
)

var log = logrus.WithField("prefix", "main")

// Default timing parameters for the gas-ceiling retry loop, the Gnark
// wrapper poll loop, and the three cooldown windows the mining loop
// consults. spec.md leaves all of these as deployment-tunable constants
// rather than operator flags, so they are fixed here rather than exposed
// through cliflags.
const (
	defaultGasRetryInterval  = 30 * time.Second
	defaultGnarkPollInterval = 10 * time.Second
	defaultLoopCooldown      = 15 * time.Second
)

var (
	defaultDepositWindow    = cooldown.Window{Min: 2 * time.Minute, Max: 10 * time.Minute}
	defaultPostActionWindow = cooldown.Window{Min: 30 * time.Second, Max: 3 * time.Minute}
)

func main() {
	app := cli.NewApp()
	app.Name = "miner"
	app.Usage = "privacy-preserving mining agent for a zk mixer/minter deployment"
	app.Flags = cliflags.SharedFlags

	app.Commands = []*cli.Command{
		{
			Name:   "init",
			Usage:  "create or overwrite a network's config with a withdrawal key",
			Flags:  cliflags.InitFlags,
			Action: initAction,
		},
		{
			Name:   "mine",
			Usage:  "run the mining loop: deposit, wait, withdraw, advance",
			Flags:  cliflags.MiningFlags,
			Action: mineAction,
		},
		{
			Name:   "exit",
			Usage:  "wind every derived address down to zero outstanding deposits",
			Flags:  cliflags.SharedFlags,
			Action: exitAction,
		},
		{
			Name:   "claim",
			Usage:  "claim reward tokens for every eligible, not-yet-claimed deposit",
			Flags:  cliflags.SharedFlags,
			Action: claimAction,
		},
		{
			Name:   "export",
			Usage:  "export every derived address's deposit status to csv",
			Flags:  append(append([]cli.Flag{}, cliflags.SharedFlags...), cliflags.ExportFlag),
			Action: exportAction,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		dataDir := ctx.String(cliflags.DataDirFlag.Name)
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return errors.Wrap(err, "could not create data directory")
		}
		if err := agreement.VerifyAcceptedOrPrompt(dataDir, bufio.NewReader(os.Stdin)); err != nil {
			return err
		}

		format := ctx.String(cliflags.LogFormatFlag.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			formatter.DisableColors = ctx.String(cliflags.LogFileFlag.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			f := joonix.NewFormatter()
			if err := joonix.DisableTimestampFormat(f); err != nil {
				return err
			}
			logrus.SetFormatter(f)
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		if logFile := ctx.String(cliflags.LogFileFlag.Name); logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return errors.Wrap(err, "could not open log file")
			}
			logrus.SetOutput(f)
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("runtime panic: %v\n%v", x, string(runtimeDebug.Stack()))
			panic(x)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// runtimeCtx bundles everything every mode needs once config has loaded:
// the loaded config, the dialed chain adapter, a synced tree source, the
// mining dependencies, and the optional metrics server.
type runtimeCtx struct {
	cfg          *config.EnvConfig
	adapter      *chainadapter.Adapter
	synchronizer *sync.Synchronizer
	deps         *mining.Dependencies
	metrics      *metrics.Service
}

// Close tears down everything setup opened, in reverse order.
func (rt *runtimeCtx) Close() {
	if rt.metrics != nil {
		if err := rt.metrics.Stop(); err != nil {
			log.WithError(err).Warn("could not stop metrics server cleanly")
		}
	}
	rt.adapter.Close()
}

func setup(cliCtx *cli.Context) (*runtimeCtx, error) {
	ctx := cliCtx.Context
	dataDir := cliCtx.String(cliflags.DataDirFlag.Name)
	networkFlag := config.Network(cliCtx.String(cliflags.NetworkFlag.Name))
	if !networkFlag.Valid() {
		return nil, errors.Errorf("unknown network %q", networkFlag)
	}

	cfg, err := config.Load(dataDir, networkFlag)
	if err != nil {
		return nil, errors.Wrap(err, "could not load network config, run init to create one")
	}
	if rpcURL := cliCtx.String(cliflags.RPCURLFlag.Name); rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	if maxGas := cliCtx.String(cliflags.MaxGasPriceFlag.Name); maxGas != "" {
		cfg.MaxGasPriceWei = maxGas
	}

	defaults, ok := config.Defaults(networkFlag)
	if !ok {
		return nil, errors.Errorf("no fixed defaults for network %q", networkFlag)
	}

	adapter, err := chainadapter.Dial(ctx, chainadapter.Config{
		RPCURL:        cfg.RPCURL,
		MixerAddress:  defaults.MixerAddress,
		MinterAddress: defaults.MinterAddress,
		TokenAddress:  defaults.TokenAddress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not dial chain adapter")
	}

	store, err := sync.NewStore(filepath.Join(dataDir, string(networkFlag)))
	if err != nil {
		return nil, errors.Wrap(err, "could not open sync store")
	}
	source := sync.NewSnapshotSource(defaults.SnapshotBaseURL)
	synchronizer, err := sync.NewSynchronizer(adapter, store, source)
	if err != nil {
		return nil, errors.Wrap(err, "could not build synchronizer")
	}

	maxGasPriceWei, ok := cfg.MaxGasPrice()
	if !ok {
		return nil, errors.New("invalid max_gas_price_wei in config")
	}

	deps := &mining.Dependencies{
		Adapter:   adapter,
		Exclusion: mining.NewHTTPExclusionChecker(defaults.ExclusionURL),
		Prover:    proofengine.NewPlonky2Client(defaults.Plonky2BinaryPath),
		Wrapper:   proofengine.NewGnarkClient(defaults.GnarkWrapperURL),

		MaxGasPriceWei:    maxGasPriceWei,
		GasRetryInterval:  defaultGasRetryInterval,
		GnarkPollInterval: defaultGnarkPollInterval,
		Windows: mining.Windows{
			Deposit:      mining.CooldownWindow{Min: defaultDepositWindow.Min, Max: defaultDepositWindow.Max},
			PostAction:   mining.CooldownWindow{Min: defaultPostActionWindow.Min, Max: defaultPostActionWindow.Max},
			LoopCooldown: defaultLoopCooldown,
		},
		StatusDir: func(keyNumber uint64) string {
			dir := filepath.Join(dataDir, string(networkFlag), "pipelines", fmt.Sprintf("%d", keyNumber))
			_ = os.MkdirAll(dir, 0700)
			return dir
		},
	}

	if unitFlag := cliCtx.String(cliflags.MiningUnitFlag.Name); unitFlag != "" {
		cfg.MiningUnitWei = unitFlag
	}
	if timesFlag := cliCtx.Uint64(cliflags.MiningTimesFlag.Name); timesFlag != 0 {
		cfg.MiningTimes = timesFlag
	}
	if unit, ok := cfg.MiningUnit(); ok {
		deps.MiningUnitWei = unit
	}
	deps.MiningTimes = cfg.MiningTimes

	rt := &runtimeCtx{cfg: cfg, adapter: adapter, synchronizer: synchronizer, deps: deps}
	if metricsAddr := cliCtx.String(cliflags.MetricsAddrFlag.Name); metricsAddr != "" {
		rt.metrics = metrics.NewService(metricsAddr)
		rt.metrics.Start()
		log.WithField("addr", metricsAddr).Info("metrics server listening")
	}
	return rt, nil
}

// initAction creates (or overwrites) a network's config file from a
// supplied withdrawal private key, a recovery mnemonic, or (absent either
// flag) a freshly generated mnemonic printed once for the operator to back
// up, sealing the resulting key in the AES-GCM vault when -encrypt is set.
func initAction(cliCtx *cli.Context) error {
	network := config.Network(cliCtx.String(cliflags.NetworkFlag.Name))
	if !network.Valid() {
		return errors.Errorf("unknown network %q", network)
	}
	dataDir := cliCtx.String(cliflags.DataDirFlag.Name)

	priv, err := resolveWithdrawalKey(cliCtx)
	if err != nil {
		return err
	}
	withdrawalAddress := crypto.PubkeyToAddress(priv.PublicKey)
	if err := config.ValidateNoDuplicateWithdrawalAddress(dataDir, withdrawalAddress, network); err != nil {
		return err
	}

	cfg := &config.EnvConfig{
		Network:           network,
		RPCURL:            cliCtx.String(cliflags.RPCURLFlag.Name),
		MaxGasPriceWei:    cliCtx.String(cliflags.MaxGasPriceFlag.Name),
		WithdrawalAddress: withdrawalAddress.Hex(),
		MiningUnitWei:     cliCtx.String(cliflags.MiningUnitFlag.Name),
		MiningTimes:       cliCtx.Uint64(cliflags.MiningTimesFlag.Name),
	}

	if cliCtx.Bool(cliflags.EncryptFlag.Name) {
		password, err := promptPassword()
		if err != nil {
			return err
		}
		if err := cfg.SetEncryptedKey(priv, password); err != nil {
			return err
		}
	} else {
		cfg.SetPlainKey(priv)
	}

	if err := config.Save(dataDir, cfg); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"network":            network,
		"withdrawal_address": withdrawalAddress.Hex(),
	}).Info("config written")
	return nil
}

// resolveWithdrawalKey picks the withdrawal private key init will use, in
// order: a raw hex key, a supplied recovery mnemonic, or (if neither flag
// is set) a freshly generated mnemonic printed once so the operator can
// back it up before it is sealed away.
func resolveWithdrawalKey(cliCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	if privHex := cliCtx.String(cliflags.WithdrawalPrivateKeyFlag.Name); privHex != "" {
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "could not parse withdrawal private key")
		}
		return priv, nil
	}
	if mnemonic := cliCtx.String(cliflags.MnemonicFlag.Name); mnemonic != "" {
		priv, err := keys.WithdrawalKeyFromMnemonic(mnemonic)
		if err != nil {
			return nil, err
		}
		return priv, nil
	}
	mnemonic, priv, err := keys.NewMnemonic()
	if err != nil {
		return nil, errors.Wrap(err, "could not generate a recovery mnemonic")
	}
	fmt.Println("generated a new withdrawal key, back up this recovery phrase now:")
	fmt.Println(mnemonic)
	return priv, nil
}

func mineAction(cliCtx *cli.Context) error {
	rt, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()
	priv, err := rt.cfg.WithdrawalPrivateKey(promptPassword)
	if err != nil {
		return err
	}
	return mining.RunMiningLoop(cliCtx.Context, rt.deps, rt.synchronizer, priv)
}

func exitAction(cliCtx *cli.Context) error {
	rt, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()
	priv, err := rt.cfg.WithdrawalPrivateKey(promptPassword)
	if err != nil {
		return err
	}
	return mining.RunExitLoop(cliCtx.Context, rt.deps, rt.synchronizer, priv)
}

func claimAction(cliCtx *cli.Context) error {
	rt, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()
	priv, err := rt.cfg.WithdrawalPrivateKey(promptPassword)
	if err != nil {
		return err
	}
	return mining.RunClaimLoop(cliCtx.Context, rt.deps, rt.synchronizer, priv)
}

func exportAction(cliCtx *cli.Context) error {
	rt, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()
	priv, err := rt.cfg.WithdrawalPrivateKey(promptPassword)
	if err != nil {
		return err
	}

	out, err := os.Create(cliCtx.String(cliflags.ExportFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not create export file")
	}
	defer out.Close()

	fmt.Fprintln(out, "key_number,deposit_address,deposit_id,amount,contained,withdrawn,eligible_short,eligible_long,claimed_short,claimed_long")

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("scanning derived addresses"),
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionSpinnerType(14),
	)

	ctx := cliCtx.Context
	for keyNumber := uint64(0); ; keyNumber++ {
		_ = bar.Add(1)
		key, err := deriveExportKey(priv, keyNumber)
		if err != nil {
			return err
		}
		if err := rt.synchronizer.Sync(ctx); err != nil {
			return err
		}
		trees := assets.Trees{
			Deposit:          rt.synchronizer.DepositTree,
			EligibilityShort: rt.synchronizer.EligibilityShort,
			EligibilityLong:  rt.synchronizer.EligibilityLong,
		}
		events, err := rt.adapter.QueryDepositedEvents(ctx, 0, &key.DepositAddress)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			break
		}
		status, err := assets.Reduce(ctx, rt.adapter, trees, key.DepositAddress, key, events)
		if err != nil {
			return err
		}
		writeExportRows(out, keyNumber, key, status)
	}
	_ = bar.Finish()
	log.WithField("file", cliCtx.String(cliflags.ExportFlag.Name)).Info("export complete")
	return nil
}

func deriveExportKey(priv *ecdsa.PrivateKey, keyNumber uint64) (*keys.Key, error) {
	key, err := keys.Derive(priv, keyNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "could not derive key %d", keyNumber)
	}
	return key, nil
}

func writeExportRows(out *os.File, keyNumber uint64, key *keys.Key, status *assets.Status) {
	withdrawn := toSet(status.Withdrawn)
	short := toSet(status.EligibleShort)
	long := toSet(status.EligibleLong)
	claimedShort := toSet(status.ClaimedShort)
	claimedLong := toSet(status.ClaimedLong)
	for _, i := range status.Contained {
		event := status.Events[i]
		fmt.Fprintf(out, "%d,%s,%s,%s,%t,%t,%t,%t,%t,%t\n",
			keyNumber, key.DepositAddress.Hex(), event.DepositID, event.Amount,
			true, withdrawn[i], short[i], long[i], claimedShort[i], claimedLong[i])
	}
}

func toSet(indices []int) map[int]bool {
	out := make(map[int]bool, len(indices))
	for _, i := range indices {
		out[i] = true
	}
	return out
}

func promptPassword() (string, error) {
	fmt.Print("vault password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}
