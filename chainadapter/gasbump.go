package chainadapter

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const (
	inclusionTimeout = 20 * time.Second
	maxBumpAttempts  = 3
	bumpNumerator    = 125
	bumpDenominator  = 100
)

// buildTxFunc constructs and broadcasts one variant of a transaction at a
// given nonce and fee pair, returning the broadcast transaction.
type buildTxFunc func(ctx context.Context, nonce uint64, maxFee, maxPriorityFee *big.Int) (*types.Transaction, error)

// sendGasBumped submits a transaction and waits up to inclusionTimeout for
// it to land. On timeout it enters a bump loop of up to maxBumpAttempts:
// each resend reuses the same nonce with fee fields bumped to
// max(freshly estimated, prior * 1.25), the 25% floor required to beat the
// mempool's replacement-underpriced rule. Every previously broadcast
// variant is checked for a receipt before resending, so an attempt that was
// merely slow to propagate is never silently orphaned.
func (a *Adapter) sendGasBumped(ctx context.Context, nonce uint64, build buildTxFunc) (*types.Receipt, error) {
	maxFee, maxPriorityFee, err := a.EstimateFee1559(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not estimate initial fee")
	}

	var broadcast []*types.Transaction
	tx, err := build(ctx, nonce, maxFee, maxPriorityFee)
	if err != nil {
		return nil, errors.Wrap(err, "could not broadcast initial transaction")
	}
	broadcast = append(broadcast, tx)

	for attempt := 0; ; attempt++ {
		receipt, found := a.waitForAnyReceipt(ctx, broadcast, inclusionTimeout)
		if found {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			return nil, ErrTransactionFailed
		}
		if attempt >= maxBumpAttempts {
			return nil, ErrMaxRetriesReached
		}

		estFee, estPriority, err := a.EstimateFee1559(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "could not re-estimate fee for bump")
		}
		maxFee = bumpFee(maxFee, estFee)
		maxPriorityFee = bumpFee(maxPriorityFee, estPriority)

		log.WithFields(map[string]interface{}{
			"attempt":           attempt + 1,
			"nonce":             nonce,
			"max_fee":           maxFee.String(),
			"max_priority_fee":  maxPriorityFee.String(),
		}).Warn("transaction inclusion timed out, resending with bumped fee")

		tx, err = build(ctx, nonce, maxFee, maxPriorityFee)
		if err != nil {
			return nil, errors.Wrap(err, "could not broadcast bumped transaction")
		}
		broadcast = append(broadcast, tx)
	}
}

// bumpFee returns max(estimated, prior * 125/100), keeping the bump
// strictly non-decreasing across attempts even when the estimator returns a
// lower value than the previous attempt.
func bumpFee(prior, estimated *big.Int) *big.Int {
	floor := new(big.Int).Mul(prior, big.NewInt(bumpNumerator))
	floor.Div(floor, big.NewInt(bumpDenominator))
	if estimated.Cmp(floor) > 0 {
		return estimated
	}
	return floor
}

// waitForAnyReceipt polls for a receipt of any of the broadcast variants
// (same nonce, differing fee) until one lands or timeout elapses.
func (a *Adapter) waitForAnyReceipt(ctx context.Context, variants []*types.Transaction, timeout time.Duration) (*types.Receipt, bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, tx := range variants {
			receipt, err := a.client.TransactionReceipt(ctx, tx.Hash())
			if err == nil && receipt != nil {
				return receipt, true
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, false
		}
	}
}
