package mining

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/keys"
	claimpipeline "github.com/zkmining/miner-cli/pipeline/claim"
	withdrawalpipeline "github.com/zkmining/miner-cli/pipeline/withdrawal"
	"github.com/zkmining/miner-cli/proofengine"
)

// ChainAdapter is the read/write surface the mining loops need, narrowed
// from the full chainadapter.Adapter so tests can substitute a fake. It
// embeds the withdrawal and claim pipelines' own ChainWriter interfaces so
// a single Dependencies.Adapter value can be handed to either pipeline
// without a type assertion.
type ChainAdapter interface {
	assets.ChainReader
	withdrawalpipeline.ChainWriter
	claimpipeline.ChainWriter
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	DepositNativeToken(ctx context.Context, signer chainadapter.Signer, recipientSaltHash [32]byte, value *big.Int, nonce uint64) (*types.Receipt, error)
	CancelDeposit(ctx context.Context, signer chainadapter.Signer, depositID *big.Int, record chainadapter.DepositCancelRecord, nonce uint64) (*types.Receipt, error)
}

var _ ChainAdapter = (*chainadapter.Adapter)(nil)

// SingleDepositGas and SingleClaimGas are the gas-unit estimates spec.md
// §4.7/§4.8 use to size a balance validation before an address is
// committed to mining or claiming. Measured once against the mixer/minter
// ABI surfaces this agent calls; not read from chain, since the validation
// happens before any proof is built and the real gas used depends on a
// proof this step hasn't produced yet.
const (
	SingleDepositGas = uint64(120_000)
	SingleClaimGas   = uint64(350_000)
)

// Windows bundles the three cooldown windows the mining loop consults:
// the deterministic pre-deposit wait, and the two post-action privacy
// paddings (loop-level and inner-step-level).
type Windows struct {
	Deposit      CooldownWindow
	PostAction   CooldownWindow
	LoopCooldown time.Duration
}

// CooldownWindow is re-exported here rather than imported directly so
// mining's public API doesn't leak the cooldown package's Window type name
// into every caller; see cooldown.Window for the field meanings.
type CooldownWindow struct {
	Min time.Duration
	Max time.Duration
}

// Dependencies bundles everything one RunMiningLoop/RunExitLoop/RunClaimLoop call needs
// for a single withdrawal key across all of its derived deposit addresses.
type Dependencies struct {
	Adapter   ChainAdapter
	Exclusion ExclusionChecker

	Prover  proofengine.InnerProver
	Wrapper proofengine.WrapperProver

	MiningUnitWei    *big.Int
	MiningTimes      uint64
	MaxGasPriceWei   *big.Int
	GasRetryInterval time.Duration
	GnarkPollInterval time.Duration
	Windows          Windows

	// StatusDir returns the directory holding this key's in-flight pipeline
	// status files, e.g. "<data-dir>/<network>/pipelines/<key_number>".
	StatusDir func(keyNumber uint64) string
}

func (d *Dependencies) newWithdrawalPipeline(statusPath string, key *keys.Key) *withdrawalpipeline.Pipeline {
	var recipient [20]byte
	copy(recipient[:], key.WithdrawalAddress[:])
	return &withdrawalpipeline.Pipeline{
		StatusPath:        statusPath,
		Adapter:           d.Adapter,
		Prover:            d.Prover,
		Wrapper:           d.Wrapper,
		Signer:            chainadapter.NewSigner(key.WithdrawalPrivate),
		MaxGasPriceWei:    d.MaxGasPriceWei,
		GasRetryInterval:  d.GasRetryInterval,
		GnarkPollInterval: d.GnarkPollInterval,
		WithdrawalAddress: recipient,
	}
}

func (d *Dependencies) newClaimPipeline(statusPath string, key *keys.Key) *claimpipeline.Pipeline {
	var recipient [20]byte
	copy(recipient[:], key.WithdrawalAddress[:])
	return &claimpipeline.Pipeline{
		StatusPath:        statusPath,
		Adapter:           d.Adapter,
		Prover:            d.Prover,
		Wrapper:           d.Wrapper,
		Signer:            chainadapter.NewSigner(key.WithdrawalPrivate),
		MaxGasPriceWei:    d.MaxGasPriceWei,
		GasRetryInterval:  d.GasRetryInterval,
		GnarkPollInterval: d.GnarkPollInterval,
		WithdrawalAddress: recipient,
	}
}
