package chainadapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// DepositNativeToken submits a gas-bumped deposit transaction, paying value
// wei to the mixer against recipientSaltHash.
func (a *Adapter) DepositNativeToken(ctx context.Context, signer Signer, recipientSaltHash [32]byte, value *big.Int, nonce uint64) (*types.Receipt, error) {
	return a.sendGasBumped(ctx, nonce, func(ctx context.Context, nonce uint64, maxFee, maxPriorityFee *big.Int) (*types.Transaction, error) {
		opts, err := a.transactOpts(ctx, signer, nonce, maxFee, maxPriorityFee)
		if err != nil {
			return nil, err
		}
		opts.Value = value
		return a.mixer.DepositNativeToken(opts, recipientSaltHash)
	})
}

// CancelDeposit submits a gas-bumped cancellation for a rejected deposit.
func (a *Adapter) CancelDeposit(ctx context.Context, signer Signer, depositID *big.Int, record DepositCancelRecord, nonce uint64) (*types.Receipt, error) {
	return a.sendGasBumped(ctx, nonce, func(ctx context.Context, nonce uint64, maxFee, maxPriorityFee *big.Int) (*types.Transaction, error) {
		opts, err := a.transactOpts(ctx, signer, nonce, maxFee, maxPriorityFee)
		if err != nil {
			return nil, err
		}
		return a.mixer.CancelDeposit(opts, depositID, record.RecipientSaltHash, record.TokenIndex, record.Amount)
	})
}

// DepositCancelRecord carries the fields a cancel_deposit call must echo
// back to the mixer so it can recompute the leaf hash being withdrawn.
type DepositCancelRecord struct {
	RecipientSaltHash [32]byte
	TokenIndex        uint32
	Amount            *big.Int
}

// Withdraw submits a gas-bumped withdrawal proof.
func (a *Adapter) Withdraw(ctx context.Context, signer Signer, publicInputs, proof []byte, nonce uint64) (*types.Receipt, error) {
	return a.sendGasBumped(ctx, nonce, func(ctx context.Context, nonce uint64, maxFee, maxPriorityFee *big.Int) (*types.Transaction, error) {
		opts, err := a.transactOpts(ctx, signer, nonce, maxFee, maxPriorityFee)
		if err != nil {
			return nil, err
		}
		return a.mixer.Withdraw(opts, publicInputs, proof)
	})
}

// ClaimTokens submits a gas-bumped batch claim, chaining prevClaimHash to
// whatever new claim hash the contract assigns this submission.
func (a *Adapter) ClaimTokens(ctx context.Context, signer Signer, prevClaimHash [32]byte, publicInputs, proof []byte, nonce uint64) (*types.Receipt, error) {
	return a.sendGasBumped(ctx, nonce, func(ctx context.Context, nonce uint64, maxFee, maxPriorityFee *big.Int) (*types.Transaction, error) {
		opts, err := a.transactOpts(ctx, signer, nonce, maxFee, maxPriorityFee)
		if err != nil {
			return nil, err
		}
		return a.minter.SubmitClaims(opts, prevClaimHash, publicInputs, proof)
	})
}
