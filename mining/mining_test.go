package mining

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/chainadapter/contracts"
	"github.com/zkmining/miner-cli/keys"
)

// fakeAdapter implements ChainAdapter with just enough behavior for the
// validation tests; every unused write call fails loudly if exercised.
type fakeAdapter struct {
	balance  *big.Int
	gasPrice *big.Int
}

func (f *fakeAdapter) QueryDepositedEvents(context.Context, uint64, *common.Address) ([]chainadapter.DepositedEvent, error) {
	return nil, nil
}
func (f *fakeAdapter) GetDepositData(context.Context, *big.Int) (contracts.DepositData, error) {
	return contracts.DepositData{}, nil
}
func (f *fakeAdapter) LastProcessedDepositID(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (f *fakeAdapter) WithdrawalNullifierSpent(context.Context, [32]byte) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) ClaimNullifierSpent(context.Context, [32]byte) (bool, error) { return false, nil }
func (f *fakeAdapter) Withdraw(context.Context, chainadapter.Signer, []byte, []byte, uint64) (*types.Receipt, error) {
	panic("not exercised by these tests")
}
func (f *fakeAdapter) ClaimTokens(context.Context, chainadapter.Signer, [32]byte, []byte, []byte, uint64) (*types.Receipt, error) {
	panic("not exercised by these tests")
}
func (f *fakeAdapter) LastClaimHash(context.Context) ([32]byte, error) { return [32]byte{}, nil }
func (f *fakeAdapter) NonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakeAdapter) GasPrice(context.Context) (*big.Int, error)             { return f.gasPrice, nil }
func (f *fakeAdapter) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeAdapter) TokenBalanceOf(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeAdapter) DepositNativeToken(context.Context, chainadapter.Signer, [32]byte, *big.Int, uint64) (*types.Receipt, error) {
	panic("not exercised by these tests")
}
func (f *fakeAdapter) CancelDeposit(context.Context, chainadapter.Signer, *big.Int, chainadapter.DepositCancelRecord, uint64) (*types.Receipt, error) {
	panic("not exercised by these tests")
}

var _ ChainAdapter = (*fakeAdapter)(nil)

type fakeExclusion struct{ excluded bool }

func (f fakeExclusion) IsExcluded(context.Context, common.Address) (bool, error) { return f.excluded, nil }

func mustKey(t *testing.T) *keys.Key {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	key, err := keys.Derive(priv, 0)
	require.NoError(t, err)
	return key
}

func TestValidateAddress_ExcludedIsAlwaysRejected(t *testing.T) {
	deps := &Dependencies{
		Adapter:        &fakeAdapter{balance: big.NewInt(1_000_000_000_000), gasPrice: big.NewInt(1)},
		Exclusion:      fakeExclusion{excluded: true},
		MiningUnitWei:  big.NewInt(100),
		MiningTimes:    3,
		MaxGasPriceWei: big.NewInt(1000),
	}
	ok, err := validateAddress(context.Background(), deps, mustKey(t), &assets.Status{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateAddress_InsufficientBalanceIsRejected(t *testing.T) {
	deps := &Dependencies{
		Adapter:        &fakeAdapter{balance: big.NewInt(1), gasPrice: big.NewInt(1)},
		Exclusion:      fakeExclusion{excluded: false},
		MiningUnitWei:  big.NewInt(1_000_000),
		MiningTimes:    3,
		MaxGasPriceWei: big.NewInt(1000),
	}
	ok, err := validateAddress(context.Background(), deps, mustKey(t), &assets.Status{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateAddress_SufficientBalancePasses(t *testing.T) {
	unit := big.NewInt(1_000_000)
	required := new(big.Int).Mul(new(big.Int).Add(unit, big.NewInt(int64(SingleDepositGas))), big.NewInt(3))
	deps := &Dependencies{
		Adapter:        &fakeAdapter{balance: new(big.Int).Add(required, big.NewInt(1)), gasPrice: big.NewInt(1)},
		Exclusion:      fakeExclusion{excluded: false},
		MiningUnitWei:  unit,
		MiningTimes:    3,
		MaxGasPriceWei: big.NewInt(1000),
	}
	ok, err := validateAddress(context.Background(), deps, mustKey(t), &assets.Status{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateAddress_AllAttemptedSkipsBalanceCheck(t *testing.T) {
	deps := &Dependencies{
		Adapter:        &fakeAdapter{balance: big.NewInt(0), gasPrice: big.NewInt(1)},
		Exclusion:      fakeExclusion{excluded: false},
		MiningUnitWei:  big.NewInt(1_000_000),
		MiningTimes:    2,
		MaxGasPriceWei: big.NewInt(1000),
	}
	status := &assets.Status{Contained: []int{0, 1}}
	ok, err := validateAddress(context.Background(), deps, mustKey(t), status)
	require.NoError(t, err)
	require.True(t, ok, "nothing left to deposit means the address still passes, withdrawals may remain")
}

func TestLastEventTimestamp(t *testing.T) {
	status := &assets.Status{Events: []chainadapter.DepositedEvent{
		{Timestamp: 10},
		{Timestamp: 30},
		{Timestamp: 20},
	}}
	require.Equal(t, uint64(30), lastEventTimestamp(status))
}

func TestLastEventTimestamp_Empty(t *testing.T) {
	require.Equal(t, uint64(0), lastEventTimestamp(&assets.Status{}))
}

func TestSleepLoopCooldown_ZeroReturnsImmediately(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepLoopCooldown(context.Background(), 0))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSleepLoopCooldown_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepLoopCooldown(ctx, time.Hour)
	require.Error(t, err)
}
