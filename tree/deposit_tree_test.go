package tree

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func mustLeaf(n byte) [32]byte {
	return leafHash([32]byte{n}, uint32(n), [32]byte{n})
}

func TestDepositTree_MonotonicityAndIndex(t *testing.T) {
	tr := NewDepositTree(8)
	require.Equal(t, uint64(0), tr.Len())

	for i := byte(0); i < 5; i++ {
		require.NoError(t, tr.Push(mustLeaf(i)))
		require.Equal(t, uint64(i)+1, tr.Len())
	}

	for i := byte(0); i < 5; i++ {
		idx, ok := tr.GetIndex(mustLeaf(i))
		require.True(t, ok)
		require.Equal(t, uint64(i), idx)
	}

	_, ok := tr.GetIndex(mustLeaf(99))
	require.False(t, ok)
}

func TestDepositTree_ProofVerifies(t *testing.T) {
	tr := NewDepositTree(4)
	for i := byte(0); i < 6; i++ {
		require.NoError(t, tr.Push(mustLeaf(i)))
	}
	root := tr.Root()
	for i := uint64(0); i < 6; i++ {
		proof, err := tr.Prove(i)
		require.NoError(t, err)
		require.True(t, VerifyProof(root, mustLeaf(byte(i)), i, proof))
	}
}

func TestDepositTree_FullIsFatal(t *testing.T) {
	tr := NewDepositTree(1) // capacity 2
	require.NoError(t, tr.Push(mustLeaf(0)))
	require.NoError(t, tr.Push(mustLeaf(1)))
	require.Error(t, tr.Push(mustLeaf(2)))
}

func TestDepositTree_RejectsDuplicateHash(t *testing.T) {
	tr := NewDepositTree(4)
	require.NoError(t, tr.Push(mustLeaf(0)))
	require.Error(t, tr.Push(mustLeaf(0)))
}

func TestLeafHash_MatchesKeccak(t *testing.T) {
	var pkh, amt [32]byte
	pkh[0] = 1
	amt[0] = 2
	got := leafHash(pkh, 3, amt)
	buf := append(append([]byte{}, pkh[:]...), 0, 0, 0, 3)
	buf = append(buf, amt[:]...)
	want := crypto.Keccak256(buf)
	require.Equal(t, want, got[:])
}
