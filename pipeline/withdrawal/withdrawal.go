// Package withdrawal implements the withdrawal pipeline (C7): a five-step
// resumable state machine — WitnessGen, Plonky2, GnarkStart, GnarkFetch,
// ContractCall — producing exactly one withdrawal transaction per deposit.
// Grounded on validator/accounts/v2's read-modify-write-keystore
// persistence pattern (pipeline.SaveStatus/LoadStatus), generalized from a
// keystore file to a pipeline status file.
package withdrawal

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/gaspolicy"
	"github.com/zkmining/miner-cli/pipeline"
	"github.com/zkmining/miner-cli/proofengine"
)

var log = logrus.WithField("prefix", "pipeline/withdrawal")

// MaxGnarkFetchAttempts bounds the busy-poll loop in GnarkFetch; spec.md
// calls for "a handful" of tries before the pipeline abandons this deposit.
const MaxGnarkFetchAttempts = 10

// Status is the persisted JSON shape for one in-flight withdrawal.
type Status struct {
	NextStep       pipeline.Step             `json:"next_step"`
	Witness        *proofengine.WithdrawalWitness `json:"witness,omitempty"`
	InnerProof     proofengine.InnerProof    `json:"inner_proof,omitempty"`
	JobID          string                    `json:"job_id,omitempty"`
	StartQueryTime int64                     `json:"start_query_time,omitempty"` // unix seconds
	OuterProof     proofengine.OuterProof    `json:"outer_proof,omitempty"`
}

// Deposit carries the fields a withdrawal witness is built from.
type Deposit struct {
	DepositID    *big.Int
	DepositIndex uint64
	DepositLeaf  [32]byte
	DepositRoot  [32]byte
	MerkleProof  [][32]byte
	Pubkey       *big.Int
	Salt         *big.Int
}

// ChainWriter is the write surface this pipeline's ContractCall step needs.
type ChainWriter interface {
	Withdraw(ctx context.Context, signer chainadapter.Signer, publicInputs, proof []byte, nonce uint64) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Pipeline drives one deposit's withdrawal through all five steps,
// persisting Status to StatusPath between each.
type Pipeline struct {
	StatusPath string
	Adapter    ChainWriter
	Prover     proofengine.InnerProver
	Wrapper    proofengine.WrapperProver
	Signer     chainadapter.Signer

	MaxGasPriceWei       *big.Int
	GasRetryInterval     time.Duration
	GnarkPollInterval    time.Duration
	WithdrawalAddress    [20]byte
}

// Resume reports whether a status file already exists, and the step it
// would resume from — used by the resumption coordinator (§4.11) to decide
// whether to finish an in-flight pipeline before running the outer loop.
func (p *Pipeline) Resume() (bool, pipeline.Step, error) {
	var status Status
	found, err := pipeline.LoadStatus(p.StatusPath, &status)
	if err != nil || !found {
		return found, "", err
	}
	return true, status.NextStep, nil
}

// Run advances deposit through the pipeline to completion, resuming from
// any existing status file rather than deposit's fresh witness. Returns the
// final withdrawal receipt, or a non-fatal error (user re-runs; the
// nullifier is already consumed) if the final receipt was not successful.
func (p *Pipeline) Run(ctx context.Context, deposit Deposit) (*types.Receipt, error) {
	status, err := p.loadOrStart(deposit)
	if err != nil {
		return nil, err
	}

	for {
		switch status.NextStep {
		case pipeline.StepWitnessGen:
			if err := p.stepWitnessGen(status, deposit); err != nil {
				return nil, err
			}
		case pipeline.StepPlonky2:
			if err := p.stepPlonky2(ctx, status); err != nil {
				return nil, err
			}
		case pipeline.StepGnarkStart:
			if err := p.stepGnarkStart(ctx, status); err != nil {
				return nil, err
			}
		case pipeline.StepGnarkFetch:
			if err := p.stepGnarkFetch(ctx, status); err != nil {
				return nil, err
			}
		case pipeline.StepContract:
			return p.stepContractCall(ctx, status)
		default:
			return nil, errors.Errorf("unknown pipeline step %q", status.NextStep)
		}
		if err := pipeline.SaveStatus(p.StatusPath, status); err != nil {
			return nil, err
		}
	}
}

func (p *Pipeline) loadOrStart(deposit Deposit) (*Status, error) {
	status := &Status{}
	found, err := pipeline.LoadStatus(p.StatusPath, status)
	if err != nil {
		return nil, err
	}
	if found {
		return status, nil
	}
	status.NextStep = pipeline.StepWitnessGen
	return status, nil
}

func (p *Pipeline) stepWitnessGen(status *Status, deposit Deposit) error {
	var pubkey, salt [32]byte
	deposit.Pubkey.FillBytes(pubkey[:])
	deposit.Salt.FillBytes(salt[:])
	status.Witness = &proofengine.WithdrawalWitness{
		DepositRoot:  deposit.DepositRoot,
		DepositIndex: deposit.DepositIndex,
		DepositLeaf:  deposit.DepositLeaf,
		MerkleProof:  deposit.MerkleProof,
		Recipient:    p.WithdrawalAddress,
		Pubkey:       pubkey,
		Salt:         salt,
	}
	status.NextStep = pipeline.StepPlonky2
	return nil
}

func (p *Pipeline) stepPlonky2(ctx context.Context, status *Status) error {
	proof, err := p.Prover.ProveWithdrawal(ctx, *status.Witness)
	if err != nil {
		return errors.Wrap(err, "inner withdrawal proof failed")
	}
	status.InnerProof = proof
	status.NextStep = pipeline.StepGnarkStart
	return nil
}

func (p *Pipeline) stepGnarkStart(ctx context.Context, status *Status) error {
	publicInputs := encodeWithdrawalPublicInputs(*status.Witness)
	jobID, estimatedMs, err := p.Wrapper.StartProof(ctx, p.WithdrawalAddress, status.InnerProof, publicInputs)
	if err != nil {
		return errors.Wrap(err, "could not start wrapper proof job")
	}
	status.JobID = jobID
	status.StartQueryTime = time.Now().Add(time.Duration(estimatedMs) * time.Millisecond).Unix()
	status.NextStep = pipeline.StepGnarkFetch
	return nil
}

func (p *Pipeline) stepGnarkFetch(ctx context.Context, status *Status) error {
	if wait := time.Until(time.Unix(status.StartQueryTime, 0)); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for attempt := 0; attempt < MaxGnarkFetchAttempts; attempt++ {
		jobStatus, result, err := p.Wrapper.GetProof(ctx, status.JobID)
		if err != nil {
			return errors.Wrap(err, "could not poll wrapper proof job")
		}
		switch jobStatus {
		case proofengine.JobDone:
			status.OuterProof = result
			status.NextStep = pipeline.StepContract
			return nil
		case proofengine.JobError:
			return errors.Errorf("wrapper prover reported job %s failed", status.JobID)
		}
		select {
		case <-time.After(p.GnarkPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Errorf("wrapper proof job %s did not complete after %d attempts", status.JobID, MaxGnarkFetchAttempts)
}

func (p *Pipeline) stepContractCall(ctx context.Context, status *Status) (*types.Receipt, error) {
	if err := gaspolicy.WaitForAcceptableGas(ctx, p.Adapter, p.MaxGasPriceWei, p.GasRetryInterval); err != nil {
		return nil, err
	}
	nonce, err := p.Adapter.NonceAt(ctx, p.Signer.Address)
	if err != nil {
		return nil, errors.Wrap(err, "could not read signer nonce")
	}
	publicInputs := encodeWithdrawalPublicInputs(*status.Witness)

	// Delete the status file BEFORE awaiting the receipt: the on-chain
	// withdrawal nullifier is the authoritative replay guard, so a timeout
	// after broadcast can never cause a double submission, but leaving the
	// file in place across a successful-but-slow confirmation would make
	// the next run re-submit a withdrawal whose nullifier is about to land.
	if err := pipeline.DeleteStatus(p.StatusPath); err != nil {
		return nil, err
	}

	receipt, err := p.Adapter.Withdraw(ctx, p.Signer, publicInputs, status.OuterProof, nonce)
	if err != nil {
		log.WithError(err).Warn("withdrawal submission did not confirm successfully; the reducer will detect an already-withdrawn deposit on the next pass if it in fact landed")
		return nil, err
	}
	return receipt, nil
}

// encodeWithdrawalPublicInputs packs a witness's public fields into the
// SimpleWithdrawalPublicInputs byte layout the mixer's withdraw() expects:
// deposit root, recipient, pubkey, and salt concatenated in that order.
func encodeWithdrawalPublicInputs(w proofengine.WithdrawalWitness) []byte {
	out := make([]byte, 0, 32+20+32+32)
	out = append(out, w.DepositRoot[:]...)
	out = append(out, w.Recipient[:]...)
	out = append(out, w.Pubkey[:]...)
	out = append(out, w.Salt[:]...)
	return out
}
