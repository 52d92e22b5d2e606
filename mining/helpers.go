package mining

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/keys"
	claimpipeline "github.com/zkmining/miner-cli/pipeline/claim"
	withdrawalpipeline "github.com/zkmining/miner-cli/pipeline/withdrawal"
	"github.com/zkmining/miner-cli/tree"
)

func amountBytes(amount *big.Int) [32]byte {
	var out [32]byte
	amount.FillBytes(out[:])
	return out
}

// buildWithdrawalDeposit resolves event index i of status into the fields
// pipeline/withdrawal needs, reading the deposit's tree position and
// sibling path out of trees.
func buildWithdrawalDeposit(trees assets.Trees, status *assets.Status, i int, key *keys.Key) (withdrawalpipeline.Deposit, error) {
	event := status.Events[i]
	leaf := tree.LeafHash(event.RecipientSaltHash, event.TokenIndex, amountBytes(event.Amount))
	depositIndex, ok := trees.Deposit.GetIndex(leaf)
	if !ok {
		return withdrawalpipeline.Deposit{}, errors.Errorf("deposit %s not found in local deposit tree", event.DepositID)
	}
	proof, err := trees.Deposit.Prove(depositIndex)
	if err != nil {
		return withdrawalpipeline.Deposit{}, errors.Wrapf(err, "could not build merkle proof for deposit %s", event.DepositID)
	}
	return withdrawalpipeline.Deposit{
		DepositID:    event.DepositID,
		DepositIndex: depositIndex,
		DepositLeaf:  leaf,
		DepositRoot:  trees.Deposit.Root(),
		MerkleProof:  proof,
		Pubkey:       keys.Pubkey(key.DepositPrivateKey),
		Salt:         keys.Salt(key.DepositPrivateKey, event.TxNonce),
	}, nil
}

// buildClaimDeposit resolves event index i of status into the fields
// pipeline/claim needs for one term's eligibility tree.
func buildClaimDeposit(trees assets.Trees, status *assets.Status, i int, key *keys.Key, short bool) (claimpipeline.Deposit, error) {
	event := status.Events[i]
	leaf := tree.LeafHash(event.RecipientSaltHash, event.TokenIndex, amountBytes(event.Amount))
	depositIndex, ok := trees.Deposit.GetIndex(leaf)
	if !ok {
		return claimpipeline.Deposit{}, errors.Errorf("deposit %s not found in local deposit tree", event.DepositID)
	}
	eligibilityTree := trees.EligibilityShort
	if !short {
		eligibilityTree = trees.EligibilityLong
	}
	position, amount, ok := eligibilityTree.GetLeafIndex(depositIndex)
	if !ok {
		return claimpipeline.Deposit{}, errors.Errorf("deposit %s not eligible in this term's tree", event.DepositID)
	}
	proof, err := eligibilityTree.Prove(position)
	if err != nil {
		return claimpipeline.Deposit{}, errors.Wrapf(err, "could not build eligibility merkle proof for deposit %s", event.DepositID)
	}
	return claimpipeline.Deposit{
		DepositID:      event.DepositID,
		DepositIndex:   depositIndex,
		DepositLeaf:    leaf,
		EligibleAmount: amount,
		MerkleProof:    proof,
		Salt:           keys.Salt(key.DepositPrivateKey, event.TxNonce),
	}, nil
}

// reduceAssets re-fetches a key's Deposited events and classifies them
// against the synchronizer's current trees. Exists as a seam so mining,
// exit, and claim all re-derive status the same way.
func reduceAssets(ctx context.Context, reader assets.ChainReader, trees assets.Trees, key *keys.Key) (*assets.Status, error) {
	events, err := reader.QueryDepositedEvents(ctx, 0, &key.DepositAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "could not query deposited events for %s", key.DepositAddress.Hex())
	}
	return assets.Reduce(ctx, reader, trees, key.DepositAddress, key, events)
}
