// Package tree maintains the local incremental Merkle tree of deposit
// hashes (C2) and the two index-addressed eligibility trees (C3), built the
// same way the beacon chain's incremental deposit trie is built: a
// zero-hash per level, leaves appended strictly in order, and branches
// recomputed lazily on root/proof requests.
package tree

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// HeightDeposit is the fixed height of the deposit hash tree (H_D).
const HeightDeposit = 32

var zeroHashes = computeZeroHashes(HeightDeposit + 1)

func computeZeroHashes(levels int) [][32]byte {
	hashes := make([][32]byte, levels)
	// The empty-leaf hash is the hash of a zero Deposit{salt=0, token=0, amount=0}.
	hashes[0] = leafHash([32]byte{}, 0, [32]byte{})
	for i := 1; i < levels; i++ {
		hashes[i] = hashPair(hashes[i-1], hashes[i-1])
	}
	return hashes
}

func hashPair(left, right [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(append(append([]byte{}, left[:]...), right[:]...)))
	return out
}

// leafHash hashes a deposit leaf identity {pubkey_salt_hash, token_index, amount}.
func leafHash(pubkeySaltHash [32]byte, tokenIndex uint32, amount [32]byte) [32]byte {
	buf := make([]byte, 0, 32+4+32)
	buf = append(buf, pubkeySaltHash[:]...)
	buf = append(buf, byte(tokenIndex>>24), byte(tokenIndex>>16), byte(tokenIndex>>8), byte(tokenIndex))
	buf = append(buf, amount[:]...)
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}

// LeafHash is the exported form of leafHash used by callers that build a
// deposit leaf identity from its public fields.
func LeafHash(pubkeySaltHash [32]byte, tokenIndex uint32, amount [32]byte) [32]byte {
	return leafHash(pubkeySaltHash, tokenIndex, amount)
}

// MerkleProof is a root-to-leaf sibling path, one hash per level.
type MerkleProof [][32]byte

// DepositTree is an append-only incremental Merkle tree of deposit leaf
// hashes. Invariant: len(tree) == next expected deposit_index.
type DepositTree struct {
	height   int
	leaves   [][32]byte
	index    map[[32]byte]uint64
	watermark uint64 // last synced block number, tracked by the synchronizer
}

// NewDepositTree constructs an empty tree of the given height.
func NewDepositTree(height int) *DepositTree {
	return &DepositTree{
		height: height,
		leaves: nil,
		index:  make(map[[32]byte]uint64),
	}
}

// Len returns the number of leaves pushed so far.
func (t *DepositTree) Len() uint64 {
	return uint64(len(t.leaves))
}

// Watermark returns the last block number this tree has synced up to.
func (t *DepositTree) Watermark() uint64 { return t.watermark }

// SetWatermark records the block number this tree has synced up to.
func (t *DepositTree) SetWatermark(block uint64) { t.watermark = block }

// Push appends a leaf hash at the next index. Pushing beyond 2^height is a
// fatal, unrecoverable error: the tree cannot represent more leaves than
// its fixed capacity.
func (t *DepositTree) Push(hash [32]byte) error {
	if uint64(len(t.leaves)) >= uint64(1)<<uint(t.height) {
		return fmt.Errorf("deposit tree at height %d is full, cannot push leaf %d", t.height, len(t.leaves))
	}
	if _, exists := t.index[hash]; exists {
		return errors.Errorf("deposit hash %x already present in tree at index %d", hash, t.index[hash])
	}
	idx := uint64(len(t.leaves))
	t.leaves = append(t.leaves, hash)
	t.index[hash] = idx
	return nil
}

// Contains reports whether hash has ever been pushed.
func (t *DepositTree) Contains(hash [32]byte) bool {
	_, ok := t.index[hash]
	return ok
}

// GetIndex returns the index hash was pushed at, if any.
func (t *DepositTree) GetIndex(hash [32]byte) (uint64, bool) {
	idx, ok := t.index[hash]
	return idx, ok
}

// Root computes the tree's current Merkle root.
func (t *DepositTree) Root() [32]byte {
	nodes := append([][32]byte{}, t.leaves...)
	if len(nodes) == 0 {
		return zeroHashes[t.height]
	}
	for level := 0; level < t.height; level++ {
		nodes = foldLevel(nodes, level)
	}
	return nodes[0]
}

// Prove returns a Merkle proof for the leaf at index.
func (t *DepositTree) Prove(index uint64) (MerkleProof, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, errors.Errorf("index %d out of range, tree has %d leaves", index, len(t.leaves))
	}
	proof := make(MerkleProof, t.height)
	for level := 0; level < t.height; level++ {
		siblingIdx := (index >> uint(level)) ^ 1
		proof[level] = t.nodeAt(level, siblingIdx)
	}
	return proof, nil
}

// nodeAt returns the node at (level, idx), using the precomputed zero-hash
// whenever idx falls past the populated subtree at that level.
func (t *DepositTree) nodeAt(level int, idx uint64) [32]byte {
	nodes := t.levelNodes(level)
	if idx < uint64(len(nodes)) {
		return nodes[idx]
	}
	return zeroHashes[level]
}

// levelNodes lazily recomputes every node at a given level from the current
// leaf set. Recomputed on demand rather than cached incrementally: pushes
// are infrequent relative to root/proof reads in the mining loop.
func (t *DepositTree) levelNodes(level int) [][32]byte {
	nodes := append([][32]byte{}, t.leaves...)
	for l := 0; l < level; l++ {
		nodes = foldLevel(nodes, l)
	}
	return nodes
}

func foldLevel(nodes [][32]byte, level int) [][32]byte {
	next := make([][32]byte, (len(nodes)+1)/2)
	for i := range next {
		left := nodes[2*i]
		var right [32]byte
		if 2*i+1 < len(nodes) {
			right = nodes[2*i+1]
		} else {
			right = zeroHashes[level]
		}
		next[i] = hashPair(left, right)
	}
	return next
}

// VerifyProof checks a Merkle proof against a given root.
func VerifyProof(root [32]byte, leaf [32]byte, index uint64, proof MerkleProof) bool {
	node := leaf
	for level, sibling := range proof {
		if (index>>uint(level))&1 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
	}
	return node == root
}
