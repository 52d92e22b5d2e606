package mining

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/zkmining/miner-cli/assets"
	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/cooldown"
	"github.com/zkmining/miner-cli/gaspolicy"
	"github.com/zkmining/miner-cli/keys"
	"github.com/zkmining/miner-cli/sync"
)

var log = logrus.WithField("prefix", "mining")

// maxConsecutiveUnfundedAddresses bounds the mining loop's scan past
// key_numbers that fail the balance/exclusion validation: addresses are
// expected to be funded contiguously, so a short run of unfunded
// addresses means the operator is done topping up, not that a gap was
// intentional.
const maxConsecutiveUnfundedAddresses = 3

// RunMiningLoop drives the mining loop of spec.md §4.7: for key_number =
// 0, 1, 2, ..., derive the deposit key, validate its funding, then run the
// inner deposit/withdraw loop until mining_times deposits from that address
// have been contained or cancelled. Returns when maxConsecutiveUnfundedAddresses
// addresses in a row fail validation, or ctx is cancelled.
func RunMiningLoop(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, withdrawalPriv *ecdsa.PrivateKey) error {
	unfunded := 0
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

		ok, err := validateAddress(ctx, deps, key, status)
		if err != nil {
			return err
		}
		if !ok {
			unfunded++
			log.WithFields(logrus.Fields{
				"key_number": keyNumber,
				"address":    key.DepositAddress.Hex(),
			}).Info("deposit address not funded or excluded, skipping")
			if unfunded >= maxConsecutiveUnfundedAddresses {
				log.Info("mining loop stopping: too many consecutive unfunded addresses")
				return nil
			}
			continue
		}
		unfunded = 0

		if err := runAddress(ctx, deps, synchronizer, key); err != nil {
			return errors.Wrapf(err, "mining loop failed at key %d", keyNumber)
		}
	}
}

func treesOf(s *sync.Synchronizer) assets.Trees {
	return assets.Trees{
		Deposit:          s.DepositTree,
		EligibilityShort: s.EligibilityShort,
		EligibilityLong:  s.EligibilityLong,
	}
}

// validateAddress checks the deposit address has enough native balance to
// fund its remaining deposits (mining_unit + gas per deposit, times the
// deposits not yet attempted) and is not on the circulation exclusion list.
func validateAddress(ctx context.Context, deps *Dependencies, key *keys.Key, status *assets.Status) (bool, error) {
	excluded, err := deps.Exclusion.IsExcluded(ctx, key.DepositAddress)
	if err != nil {
		return false, errors.Wrap(err, "could not check exclusion list")
	}
	if excluded {
		return false, nil
	}

	attempted := uint64(len(status.Contained) + len(status.Rejected) + len(status.Cancelled))
	if attempted >= deps.MiningTimes {
		return true, nil // nothing left to deposit, but withdrawals may remain
	}
	remaining := deps.MiningTimes - attempted

	gasPrice, err := deps.Adapter.GasPrice(ctx)
	if err != nil {
		return false, errors.Wrap(err, "could not read gas price")
	}
	perDeposit := new(big.Int).Add(deps.MiningUnitWei, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(SingleDepositGas)))
	required := new(big.Int).Mul(perDeposit, new(big.Int).SetUint64(remaining))

	balance, err := deps.Adapter.BalanceAt(ctx, key.DepositAddress)
	if err != nil {
		return false, errors.Wrap(err, "could not read deposit address balance")
	}
	return balance.Cmp(required) >= 0, nil
}

// runAddress drives one deposit address's inner loop (spec.md §4.7 step 3)
// until mining_times deposits from this address have been contained or
// cancelled and nothing remains pending, rejected, or not yet withdrawn.
func runAddress(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, key *keys.Key) error {
	for {
		done, err := runAddressIteration(ctx, deps, synchronizer, key)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// runAddressIteration runs a single pass of the inner loop (spec.md §4.7
// step 3) under its own trace span, the same per-iteration span shape the
// teacher's runner loop uses.
func runAddressIteration(ctx context.Context, deps *Dependencies, synchronizer *sync.Synchronizer, key *keys.Key) (done bool, err error) {
	ctx, span := trace.StartSpan(ctx, "mining.runAddress.iteration")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := synchronizer.Sync(ctx); err != nil {
		return false, errors.Wrap(err, "tree sync failed")
	}
	trees := treesOf(synchronizer)
	status, err := reduceAssets(ctx, deps.Adapter, trees, key)
	if err != nil {
		return false, err
	}

	attempted := len(status.Contained) + len(status.Rejected) + len(status.Cancelled)
	allDone := uint64(attempted) >= deps.MiningTimes && len(status.Pending) == 0 &&
		len(status.Rejected) == 0 && len(status.NotWithdrawn()) == 0
	if allDone {
		return true, nil
	}

	newDeposit := uint64(len(status.Contained)+len(status.Pending)+len(status.Rejected)+len(status.Cancelled)) < deps.MiningTimes &&
		len(status.Pending) == 0

	acted, err := miningTask(ctx, deps, trees, key, status, newDeposit, false)
	if err != nil {
		return false, err
	}

	if acted {
		if err := cooldown.RandomCooldown(ctx, cooldown.Window(deps.Windows.PostAction)); err != nil {
			return false, err
		}
	}
	if err := sleepLoopCooldown(ctx, deps.Windows.LoopCooldown); err != nil {
		return false, err
	}
	return false, nil
}

// miningTask runs one pass of spec.md §4.7 step 3d / §4.8's exit variant:
// cancel every rejected deposit, (if cancelPending) also cancel every still
// pending deposit rather than waiting out its rejection window, withdraw
// every contained-not-withdrawn deposit, then (if newDeposit) deposit one
// more mining_unit after the deterministic pre-deposit wait. Returns
// whether any on-chain action was taken.
func miningTask(ctx context.Context, deps *Dependencies, trees assets.Trees, key *keys.Key, status *assets.Status, newDeposit, cancelPending bool) (bool, error) {
	acted := false

	for _, i := range status.Rejected {
		if err := cancelDeposit(ctx, deps, key, status, i); err != nil {
			return acted, err
		}
		acted = true
	}

	if cancelPending {
		for _, i := range status.Pending {
			if err := cancelDeposit(ctx, deps, key, status, i); err != nil {
				return acted, err
			}
			acted = true
		}
	}

	for _, i := range status.NotWithdrawn() {
		if err := withdrawDeposit(ctx, deps, trees, key, status, i); err != nil {
			return acted, err
		}
		acted = true
	}

	if newDeposit {
		lastTimestamp := lastEventTimestamp(status)
		if err := cooldown.DeterministicSleep(ctx, lastTimestamp, key.DepositAddress, "deposit", cooldown.Window(deps.Windows.Deposit)); err != nil {
			return acted, err
		}
		if err := depositOnce(ctx, deps, key); err != nil {
			return acted, err
		}
		acted = true
	}

	return acted, nil
}

func lastEventTimestamp(status *assets.Status) uint64 {
	var latest uint64
	for _, event := range status.Events {
		if event.Timestamp > latest {
			latest = event.Timestamp
		}
	}
	return latest
}

func cancelDeposit(ctx context.Context, deps *Dependencies, key *keys.Key, status *assets.Status, i int) error {
	event := status.Events[i]
	if err := gaspolicy.WaitForAcceptableGas(ctx, deps.Adapter, deps.MaxGasPriceWei, deps.GasRetryInterval); err != nil {
		return err
	}
	signer := chainadapter.NewSigner(key.DepositPrivateKey)
	nonce, err := deps.Adapter.NonceAt(ctx, signer.Address)
	if err != nil {
		return errors.Wrap(err, "could not read deposit signer nonce")
	}
	record := chainadapter.DepositCancelRecord{
		RecipientSaltHash: event.RecipientSaltHash,
		TokenIndex:        event.TokenIndex,
		Amount:            event.Amount,
	}
	if _, err := deps.Adapter.CancelDeposit(ctx, signer, event.DepositID, record, nonce); err != nil {
		return errors.Wrapf(err, "could not cancel rejected deposit %s", event.DepositID)
	}
	return nil
}

func withdrawDeposit(ctx context.Context, deps *Dependencies, trees assets.Trees, key *keys.Key, status *assets.Status, i int) error {
	deposit, err := buildWithdrawalDeposit(trees, status, i, key)
	if err != nil {
		return err
	}
	statusPath := filepath.Join(deps.StatusDir(key.Number), fmt.Sprintf("withdrawal_temp_%s.json", deposit.DepositID))
	pipeline := deps.newWithdrawalPipeline(statusPath, key)
	if _, err := pipeline.Run(ctx, deposit); err != nil {
		return errors.Wrapf(err, "withdrawal pipeline failed for deposit %s", deposit.DepositID)
	}
	return nil
}

// sleepLoopCooldown pauses between inner-loop passes regardless of whether
// an action was taken, a short unconditional wait so a fully-idle address
// does not spin the loop against the RPC endpoint.
func sleepLoopCooldown(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func depositOnce(ctx context.Context, deps *Dependencies, key *keys.Key) error {
	if err := gaspolicy.WaitForAcceptableGas(ctx, deps.Adapter, deps.MaxGasPriceWei, deps.GasRetryInterval); err != nil {
		return err
	}
	signer := chainadapter.NewSigner(key.DepositPrivateKey)
	nonce, err := deps.Adapter.NonceAt(ctx, signer.Address)
	if err != nil {
		return errors.Wrap(err, "could not read deposit signer nonce")
	}
	// The salt is derived from this deposit transaction's own on-chain
	// nonce; the reducer re-derives it from the Deposited event's
	// transaction nonce (DepositedEvent.TxNonce) on later passes.
	salt := keys.Salt(key.DepositPrivateKey, nonce)
	pubkey := keys.Pubkey(key.DepositPrivateKey)
	recipientSaltHash := keys.PubkeySaltHash(pubkey, salt)
	if _, err := deps.Adapter.DepositNativeToken(ctx, signer, recipientSaltHash, deps.MiningUnitWei, nonce); err != nil {
		return errors.Wrap(err, "deposit transaction failed")
	}
	return nil
}
