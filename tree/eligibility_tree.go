package tree

import (
	"math/big"

	"github.com/pkg/errors"
)

// HeightEligibility is the fixed height of an eligibility tree (H_E).
const HeightEligibility = 32

// EligibilityLeaf is {deposit_index, amount}.
type EligibilityLeaf struct {
	DepositIndex uint64
	Amount       *big.Int
}

func (l EligibilityLeaf) hash() [32]byte {
	amountBytes := [32]byte{}
	l.Amount.FillBytes(amountBytes[:])
	var idx [32]byte
	new(big.Int).SetUint64(l.DepositIndex).FillBytes(idx[:])
	return leafHash(idx, 0, amountBytes)
}

// EligibilityTree is a Merkle tree whose leaves are (deposit_index, amount)
// pairs for only the subset of deposit indices eligible in a given term
// (short or long). Built from a decoded snapshot, then queried read-only
// by the reducer.
type EligibilityTree struct {
	height     int
	leaves     []EligibilityLeaf
	byDeposit  map[uint64]int // deposit_index -> position in leaves/tree
	blockAt    uint64
}

// NewEligibilityTree constructs an eligibility tree from an ordered set of
// leaves (ascending by DepositIndex; duplicates are rejected).
func NewEligibilityTree(height int, leaves []EligibilityLeaf) (*EligibilityTree, error) {
	t := &EligibilityTree{
		height:    height,
		leaves:    leaves,
		byDeposit: make(map[uint64]int, len(leaves)),
	}
	for i, l := range leaves {
		if _, exists := t.byDeposit[l.DepositIndex]; exists {
			return nil, errors.Errorf("duplicate deposit_index %d in eligibility tree", l.DepositIndex)
		}
		t.byDeposit[l.DepositIndex] = i
	}
	return t, nil
}

// BlockNumber this tree's leaves were captured at (set by the synchronizer).
func (t *EligibilityTree) BlockNumber() uint64 { return t.blockAt }

// SetBlockNumber records the block number this tree's leaves were captured
// at; the synchronizer sets it from the snapshot header and does not check
// the root against the chain.
func (t *EligibilityTree) SetBlockNumber(block uint64) { t.blockAt = block }

// GetLeafIndex returns the tree position of depositIndex, if eligible.
func (t *EligibilityTree) GetLeafIndex(depositIndex uint64) (position int, amount *big.Int, ok bool) {
	pos, ok := t.byDeposit[depositIndex]
	if !ok {
		return 0, nil, false
	}
	return pos, new(big.Int).Set(t.leaves[pos].Amount), true
}

// Root computes the eligibility tree's current Merkle root.
func (t *EligibilityTree) Root() [32]byte {
	if len(t.leaves) == 0 {
		return zeroHashes[t.height]
	}
	nodes := make([][32]byte, len(t.leaves))
	for i, l := range t.leaves {
		nodes[i] = l.hash()
	}
	for level := 0; level < t.height; level++ {
		nodes = foldLevel(nodes, level)
	}
	return nodes[0]
}

// Prove returns a Merkle proof for the leaf at tree position, the sibling
// path recomputed level by level the same way DepositTree.Prove does.
func (t *EligibilityTree) Prove(position int) (MerkleProof, error) {
	if position < 0 || position >= len(t.leaves) {
		return nil, errors.Errorf("position %d out of range, tree has %d leaves", position, len(t.leaves))
	}
	proof := make(MerkleProof, t.height)
	nodes := make([][32]byte, len(t.leaves))
	for i, l := range t.leaves {
		nodes[i] = l.hash()
	}
	pos := position
	for level := 0; level < t.height; level++ {
		siblingIdx := pos ^ 1
		if siblingIdx < len(nodes) {
			proof[level] = nodes[siblingIdx]
		} else {
			proof[level] = zeroHashes[level]
		}
		nodes = foldLevel(nodes, level)
		pos >>= 1
	}
	return proof, nil
}

// Len returns the number of eligible leaves.
func (t *EligibilityTree) Len() int { return len(t.leaves) }
