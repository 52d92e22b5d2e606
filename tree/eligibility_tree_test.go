package tree

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEligibilityTree_RejectsDuplicateIndex(t *testing.T) {
	leaves := []EligibilityLeaf{
		{DepositIndex: 0, Amount: big.NewInt(10)},
		{DepositIndex: 0, Amount: big.NewInt(20)},
	}
	_, err := NewEligibilityTree(8, leaves)
	require.Error(t, err)
}

func TestEligibilityTree_GetLeafIndex(t *testing.T) {
	leaves := []EligibilityLeaf{
		{DepositIndex: 3, Amount: big.NewInt(100)},
		{DepositIndex: 7, Amount: big.NewInt(250)},
	}
	et, err := NewEligibilityTree(8, leaves)
	require.NoError(t, err)
	require.Equal(t, 2, et.Len())

	pos, amt, ok := et.GetLeafIndex(7)
	require.True(t, ok)
	require.Equal(t, 1, pos)
	require.Equal(t, 0, amt.Cmp(big.NewInt(250)))

	_, _, ok = et.GetLeafIndex(99)
	require.False(t, ok)
}

func TestEligibilityTree_RootEmptyIsZeroHash(t *testing.T) {
	et, err := NewEligibilityTree(4, nil)
	require.NoError(t, err)
	require.Equal(t, zeroHashes[4], et.Root())
}

func TestEligibilityTree_RootChangesWithLeaves(t *testing.T) {
	et1, err := NewEligibilityTree(4, []EligibilityLeaf{{DepositIndex: 0, Amount: big.NewInt(1)}})
	require.NoError(t, err)
	et2, err := NewEligibilityTree(4, []EligibilityLeaf{{DepositIndex: 0, Amount: big.NewInt(2)}})
	require.NoError(t, err)
	require.NotEqual(t, et1.Root(), et2.Root())
}

func TestEligibilityTree_ProveVerifies(t *testing.T) {
	leaves := []EligibilityLeaf{
		{DepositIndex: 0, Amount: big.NewInt(10)},
		{DepositIndex: 3, Amount: big.NewInt(20)},
		{DepositIndex: 7, Amount: big.NewInt(30)},
	}
	et, err := NewEligibilityTree(8, leaves)
	require.NoError(t, err)

	for pos, leaf := range leaves {
		proof, err := et.Prove(pos)
		require.NoError(t, err)
		require.True(t, VerifyProof(et.Root(), leaf.hash(), uint64(pos), proof))
	}
}

func TestEligibilityTree_ProveRejectsOutOfRange(t *testing.T) {
	et, err := NewEligibilityTree(8, nil)
	require.NoError(t, err)
	_, err = et.Prove(0)
	require.Error(t, err)
	_, err = et.Prove(-1)
	require.Error(t, err)
}

func TestEligibilityTree_BlockNumber(t *testing.T) {
	et, err := NewEligibilityTree(4, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), et.BlockNumber())
	et.SetBlockNumber(42)
	require.Equal(t, uint64(42), et.BlockNumber())
}
