package mining

import (
	"context"
	"crypto/ecdsa"

	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/cooldown"
	"github.com/zkmining/miner-cli/keys"
	"github.com/zkmining/miner-cli/sync"
)

// RunExitLoop drives spec.md §4.8's exit loop: the same per-address shape
// as the mining loop, but it never deposits and always cancels pending
// deposits rather than waiting out a rejection window, winding every
// derived address down to zero outstanding deposits. Stops at the first
// key_number with nothing contained, pending, rejected, or not withdrawn —
// addresses beyond that point were never used.
func RunExitLoop(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, withdrawalPriv *ecdsa.PrivateKey) error {
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

		if len(status.Contained)+len(status.Pending)+len(status.Rejected) == 0 {
			log.WithField("key_number", keyNumber).Info("exit loop reached an unused address, stopping")
			return nil
		}

		if err := exitAddress(ctx, deps, synchronizer, key); err != nil {
			return errors.Wrapf(err, "exit loop failed at key %d", keyNumber)
		}
	}
}

// exitAddress repeats cancel-then-withdraw for one address until nothing
// pending, rejected, or not-yet-withdrawn remains.
func exitAddress(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, key *keys.Key) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := synchronizer.Sync(ctx); err != nil {
			return errors.Wrap(err, "tree sync failed")
		}
		trees := treesOf(synchronizer)
		status, err := reduceAssets(ctx, deps.Adapter, trees, key)
		if err != nil {
			return err
		}

		if len(status.Rejected) == 0 && len(status.NotWithdrawn()) == 0 && len(status.Pending) == 0 {
			return nil
		}

		acted, err := miningTask(ctx, deps, trees, key, status, false, true)
		if err != nil {
			return err
		}
		if acted {
			if err := cooldown.RandomCooldown(ctx, cooldown.Window(deps.Windows.PostAction)); err != nil {
				return err
			}
		}
		if err := sleepLoopCooldown(ctx, deps.Windows.LoopCooldown); err != nil {
			return err
		}
	}
}
