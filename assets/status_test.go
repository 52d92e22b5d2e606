package assets

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/chainadapter/contracts"
	"github.com/zkmining/miner-cli/keys"
	"github.com/zkmining/miner-cli/tree"
)

type fakeReader struct {
	depositData   map[string]contracts.DepositData
	lastProcessed *big.Int
	withdrawn     map[[32]byte]bool
	claimed       map[[32]byte]bool
}

func (f *fakeReader) QueryDepositedEvents(context.Context, uint64, *common.Address) ([]chainadapter.DepositedEvent, error) {
	return nil, nil
}

func (f *fakeReader) GetDepositData(_ context.Context, depositID *big.Int) (contracts.DepositData, error) {
	return f.depositData[depositID.String()], nil
}

func (f *fakeReader) LastProcessedDepositID(context.Context) (*big.Int, error) {
	return f.lastProcessed, nil
}

func (f *fakeReader) WithdrawalNullifierSpent(_ context.Context, nullifier [32]byte) (bool, error) {
	return f.withdrawn[nullifier], nil
}

func (f *fakeReader) ClaimNullifierSpent(_ context.Context, nullifier [32]byte) (bool, error) {
	return f.claimed[nullifier], nil
}

// S1: three deposits from one sender, deposit_id = 10,11,12. Tree contains
// only id=10's leaf. Contract marks id=11 rejected, id=12 default (zero).
// id=10's withdrawal nullifier is already spent.
func TestReduce_S1Classification(t *testing.T) {
	priv, err := keys.Derive(testWithdrawalKey(t), 0)
	require.NoError(t, err)

	saltHash := [32]byte{0xaa}
	tokenIndex := uint32(0)
	amount := big.NewInt(1_000_000)

	events := []chainadapter.DepositedEvent{
		{DepositID: big.NewInt(10), RecipientSaltHash: saltHash, TokenIndex: tokenIndex, Amount: amount, TxNonce: 0},
		{DepositID: big.NewInt(11), RecipientSaltHash: [32]byte{0xbb}, TokenIndex: tokenIndex, Amount: amount, TxNonce: 1},
		{DepositID: big.NewInt(12), RecipientSaltHash: [32]byte{0xcc}, TokenIndex: tokenIndex, Amount: amount, TxNonce: 2},
	}

	depositTree := tree.NewDepositTree(tree.HeightDeposit)
	var amountBuf [32]byte
	amount.FillBytes(amountBuf[:])
	require.NoError(t, depositTree.Push(tree.LeafHash(saltHash, tokenIndex, amountBuf)))

	eligibleEmpty, err := tree.NewEligibilityTree(tree.HeightEligibility, nil)
	require.NoError(t, err)

	salt0 := keys.Salt(priv.DepositPrivateKey, events[0].TxNonce)
	withdrawalNullifier := keys.PubkeySaltHash(big.NewInt(0), salt0)

	reader := &fakeReader{
		depositData: map[string]contracts.DepositData{
			"11": {IsRejected: true},
			"12": {},
		},
		lastProcessed: big.NewInt(0),
		withdrawn:     map[[32]byte]bool{withdrawalNullifier: true},
		claimed:       map[[32]byte]bool{},
	}

	status, err := Reduce(context.Background(), reader, Trees{
		Deposit:          depositTree,
		EligibilityShort: eligibleEmpty,
		EligibilityLong:  eligibleEmpty,
	}, priv.DepositAddress, priv, events)
	require.NoError(t, err)

	require.Equal(t, []int{0}, status.Contained)
	require.Equal(t, []int{1}, status.Rejected)
	require.Equal(t, []int{2}, status.Cancelled)
	require.Empty(t, status.Pending)
	require.Equal(t, []int{0}, status.Withdrawn)
	require.Empty(t, status.NotWithdrawn())
}

func TestStatus_PartitionIsDisjointAndExhaustive(t *testing.T) {
	status := &Status{
		Events:    make([]chainadapter.DepositedEvent, 4),
		Contained: []int{0},
		Rejected:  []int{1},
		Cancelled: []int{2},
		Pending:   []int{3},
	}
	seen := make(map[int]int)
	for _, bucket := range [][]int{status.Contained, status.Rejected, status.Cancelled, status.Pending} {
		for _, i := range bucket {
			seen[i]++
		}
	}
	require.Len(t, seen, len(status.Events))
	for i, count := range seen {
		require.Equalf(t, 1, count, "index %d must appear in exactly one bucket", i)
	}
}

func testWithdrawalKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return priv
}
