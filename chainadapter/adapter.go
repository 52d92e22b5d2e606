// Package chainadapter wraps the mixer, minter, and token contract bindings
// (chainadapter/contracts) behind a single Adapter: typed event queries with
// windowed pagination, gas-bumped signed sends, and the read surface the
// synchronizer and mining loop depend on. Grounded on
// beacon-chain/powchain's log-processing service and contracts/deposit-contract's
// bound-contract usage, generalized from one fixed deposit contract to three
// independent ABIs plus a bump-and-resend write path the powchain service
// never needed.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zkmining/miner-cli/chainadapter/contracts"
)

var log = logrus.WithField("prefix", "chainadapter")

// EventWindow is the block span each paginated log query covers.
const EventWindow = uint64(500_000)

// Config addresses everything the adapter needs to dial a network.
type Config struct {
	RPCURL        string
	MixerAddress  common.Address
	MinterAddress common.Address
	TokenAddress  common.Address
}

// Adapter is the agent's sole entry point to the chain: every read and
// signed write used by the synchronizer, reducer, and pipelines goes
// through it.
type Adapter struct {
	client *ethclient.Client
	chain  *big.Int
	mixer  *contracts.Mixer
	minter *contracts.Minter
	token  *contracts.Token
}

// Dial connects to rpcURL and binds all three contracts.
func Dial(ctx context.Context, cfg Config) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not dial rpc endpoint")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch chain id")
	}
	mixer, err := contracts.NewMixer(cfg.MixerAddress, client)
	if err != nil {
		return nil, errors.Wrap(err, "could not bind mixer contract")
	}
	minter, err := contracts.NewMinter(cfg.MinterAddress, client)
	if err != nil {
		return nil, errors.Wrap(err, "could not bind minter contract")
	}
	token, err := contracts.NewToken(cfg.TokenAddress, client)
	if err != nil {
		return nil, errors.Wrap(err, "could not bind token contract")
	}
	return &Adapter{client: client, chain: chainID, mixer: mixer, minter: minter, token: token}, nil
}

// Close releases the underlying RPC connection.
func (a *Adapter) Close() { a.client.Close() }

// ChainID the adapter is connected to.
func (a *Adapter) ChainID() *big.Int { return a.chain }

// HeadBlockNumber returns the chain's current head block.
func (a *Adapter) HeadBlockNumber(ctx context.Context) (uint64, error) {
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "could not fetch chain head")
	}
	return header.Number.Uint64(), nil
}

// BalanceAt reads account's native balance at the current head.
func (a *Adapter) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return a.client.BalanceAt(ctx, account, nil)
}

// TokenBalanceOf reads the ERC-20 balance of account.
func (a *Adapter) TokenBalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return a.token.BalanceOf(&bind.CallOpts{Context: ctx}, account)
}

// NonceAt reads account's next pending nonce.
func (a *Adapter) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return a.client.PendingNonceAt(ctx, account)
}

// GasPrice reads the node's legacy gas-price suggestion, used by the gas
// policy's ceiling check (C13).
func (a *Adapter) GasPrice(ctx context.Context) (*big.Int, error) {
	return a.client.SuggestGasPrice(ctx)
}

// EstimateFee1559 returns the node's current suggested (maxFeePerGas,
// maxPriorityFeePerGas) pair.
func (a *Adapter) EstimateFee1559(ctx context.Context) (maxFee, maxPriorityFee *big.Int, err error) {
	tip, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not suggest priority fee")
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not fetch head for base fee")
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	maxFeePerGas := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	return maxFeePerGas, tip, nil
}

// DepositRootBlockNumber is zero iff root never existed on chain.
func (a *Adapter) DepositRootBlockNumber(ctx context.Context, root [32]byte) (uint64, error) {
	cacheKey := "root:" + common.Bytes2Hex(root[:])
	if cached, ok := readCache.Get(cacheKey); ok {
		return cached.(uint64), nil
	}
	awaitCapacity()
	bn, err := a.mixer.DepositRootBlockNumber(&bind.CallOpts{Context: ctx}, root)
	if err != nil {
		return 0, errors.Wrap(err, "could not read deposit root block number")
	}
	result := bn.Uint64()
	readCache.SetDefault(cacheKey, result)
	return result, nil
}

// CurrentDepositRoot reads the mixer's current on-chain deposit tree root.
func (a *Adapter) CurrentDepositRoot(ctx context.Context) ([32]byte, error) {
	return a.mixer.CurrentDepositRoot(&bind.CallOpts{Context: ctx})
}

// GetDepositData reads the mixer's record for depositID. Results are
// memoized briefly since the assets reducer re-reads the same deposit ids
// every pass while little new state has landed.
func (a *Adapter) GetDepositData(ctx context.Context, depositID *big.Int) (contracts.DepositData, error) {
	cacheKey := "deposit:" + depositID.String()
	if cached, ok := readCache.Get(cacheKey); ok {
		return cached.(contracts.DepositData), nil
	}
	awaitCapacity()
	data, err := a.mixer.GetDepositData(&bind.CallOpts{Context: ctx}, depositID)
	if err != nil {
		return contracts.DepositData{}, err
	}
	readCache.SetDefault(cacheKey, data)
	return data, nil
}

// LastProcessedDepositID reads the mixer's high-watermark deposit id.
func (a *Adapter) LastProcessedDepositID(ctx context.Context) (*big.Int, error) {
	return a.mixer.LastProcessedDepositID(&bind.CallOpts{Context: ctx})
}

// WithdrawalNullifierSpent checks the mixer's nullifier registry.
func (a *Adapter) WithdrawalNullifierSpent(ctx context.Context, nullifier [32]byte) (bool, error) {
	count, err := a.mixer.Nullifier(&bind.CallOpts{Context: ctx}, nullifier)
	if err != nil {
		return false, errors.Wrap(err, "could not read withdrawal nullifier")
	}
	return count.Sign() != 0, nil
}

// ClaimNullifierSpent checks the minter's nullifier registry, used for both
// the short-term and long-term claim trees (the nullifier itself encodes
// which term it was derived for).
func (a *Adapter) ClaimNullifierSpent(ctx context.Context, nullifier [32]byte) (bool, error) {
	return a.minter.IsNullifierSpent(&bind.CallOpts{Context: ctx}, nullifier)
}

// EligibilityRoot reads the minter's published root for a term (0 = short,
// 1 = long).
func (a *Adapter) EligibilityRoot(ctx context.Context, term uint8) ([32]byte, error) {
	return a.minter.EligibilityRoot(&bind.CallOpts{Context: ctx}, term)
}

// LastClaimHash reads the minter's claim-chain tip.
func (a *Adapter) LastClaimHash(ctx context.Context) ([32]byte, error) {
	return a.minter.LastClaimHash(&bind.CallOpts{Context: ctx})
}

// Signer bundles a private key with its derived address for write paths.
type Signer struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewSigner derives a Signer's address from its key.
func NewSigner(priv *ecdsa.PrivateKey) Signer {
	return Signer{PrivateKey: priv, Address: crypto.PubkeyToAddress(priv.PublicKey)}
}

func (a *Adapter) transactOpts(ctx context.Context, signer Signer, nonce uint64, maxFee, maxPriorityFee *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(signer.PrivateKey, a.chain)
	if err != nil {
		return nil, errors.Wrap(err, "could not build transactor")
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasFeeCap = maxFee
	opts.GasTipCap = maxPriorityFee
	opts.NoSend = false
	return opts, nil
}
