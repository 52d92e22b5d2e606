package mining

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/gaspolicy"
	"github.com/zkmining/miner-cli/keys"
	claimpipeline "github.com/zkmining/miner-cli/pipeline/claim"
	"github.com/zkmining/miner-cli/sync"
)

// RunClaimLoop drives spec.md §4.8's claim loop across every used
// key_number: for each, validate the withdrawal address's gas balance
// against the batches it is about to submit, then batch-claim every
// not-yet-claimed deposit in both the short-term and long-term eligibility
// trees. Stops at the first unused key_number.
func RunClaimLoop(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, withdrawalPriv *ecdsa.PrivateKey) error {
	for keyNumber := uint64(0); ; keyNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := keys.Derive(withdrawalPriv, keyNumber)
		if err != nil {
			return errors.Wrapf(err, "could not derive key %d", keyNumber)
		}

		if err := synchronizer.Sync(ctx); err != nil {
			return errors.Wrap(err, "tree sync failed")
		}
		trees := treesOf(synchronizer)
		status, err := reduceAssets(ctx, deps.Adapter, trees, key)
		if err != nil {
			return errors.Wrapf(err, "could not reduce assets for key %d", keyNumber)
		}

		if len(status.Contained) == 0 {
			log.WithField("key_number", keyNumber).Info("claim loop reached an unused address, stopping")
			return nil
		}

		if err := claimAddress(ctx, deps, trees, key, status); err != nil {
			return errors.Wrapf(err, "claim loop failed at key %d", keyNumber)
		}
	}
}

func claimAddress(ctx context.Context, deps *Dependencies, trees assets.Trees, key *keys.Key, status *assets.Status) error {
	notShort := status.NotClaimedShort()
	notLong := status.NotClaimedLong()
	if len(notShort) == 0 && len(notLong) == 0 {
		return nil
	}

	if err := validateClaimGas(ctx, deps, key, len(notShort), len(notLong)); err != nil {
		return err
	}

	if err := claimTerm(ctx, deps, trees, key, status, notShort, true); err != nil {
		return err
	}
	if err := claimTerm(ctx, deps, trees, key, status, notLong, false); err != nil {
		return err
	}
	return nil
}

// validateClaimGas checks the withdrawal address can afford the gas for
// every batch this address is about to submit, ceil(not_claimed /
// MaxClaims) batches per term at single_claim_gas each.
func validateClaimGas(ctx context.Context, deps *Dependencies, key *keys.Key, notClaimedShort, notClaimedLong int) error {
	batches := (notClaimedShort+claimpipeline.MaxClaims-1)/claimpipeline.MaxClaims +
		(notClaimedLong+claimpipeline.MaxClaims-1)/claimpipeline.MaxClaims
	gasPrice, err := deps.Adapter.GasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read gas price")
	}
	required := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(SingleClaimGas*uint64(batches)))
	balance, err := deps.Adapter.BalanceAt(ctx, key.WithdrawalAddress)
	if err != nil {
		return errors.Wrap(err, "could not read withdrawal address balance")
	}
	if balance.Cmp(required) < 0 {
		return errors.Errorf("withdrawal address %s balance %s wei below required %s wei for %d claim batches",
			key.WithdrawalAddress.Hex(), humanize.BigComma(balance), humanize.BigComma(required), batches)
	}
	return nil
}

func claimTerm(ctx context.Context, deps *Dependencies, trees assets.Trees, key *keys.Key, status *assets.Status, notClaimed []int, short bool) error {
	term := "long"
	if short {
		term = "short"
	}
	for start := 0; start < len(notClaimed); start += claimpipeline.MaxClaims {
		end := start + claimpipeline.MaxClaims
		if end > len(notClaimed) {
			end = len(notClaimed)
		}
		chunk := notClaimed[start:end]

		batch := make([]claimpipeline.Deposit, 0, len(chunk))
		for _, i := range chunk {
			deposit, err := buildClaimDeposit(trees, status, i, key, short)
			if err != nil {
				return err
			}
			batch = append(batch, deposit)
		}

		if err := gaspolicy.WaitForAcceptableGas(ctx, deps.Adapter, deps.MaxGasPriceWei, deps.GasRetryInterval); err != nil {
			return err
		}

		statusPath := filepath.Join(deps.StatusDir(key.Number), fmt.Sprintf("claim_temp_%s_%d.json", term, start))
		pipeline := deps.newClaimPipeline(statusPath, key)
		if _, err := pipeline.Run(ctx, batch, short); err != nil {
			return errors.Wrapf(err, "claim pipeline failed for %s-term batch starting at %d", term, start)
		}
	}
	return nil
}
