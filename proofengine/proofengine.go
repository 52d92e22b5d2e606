// Package proofengine is the narrow capability boundary between the
// resumable pipelines (C7/C8) and the zero-knowledge circuit internals
// spec.md places out of scope: the inner Plonky2 claim/withdrawal circuits
// and the Gnark EVM-verifier wrapper. The pipelines depend only on the
// interfaces below; InnerProver's concrete implementation (a Plonky2
// prover binary or library) and WrapperProver's (the remote Gnark wrapper
// service) are swappable without touching pipeline code.
package proofengine

import "context"

// WithdrawalWitness carries everything the inner withdrawal circuit needs:
// a deposit's Merkle proof against the synced deposit root, plus the
// recipient and key material the circuit commits to.
type WithdrawalWitness struct {
	DepositRoot  [32]byte
	DepositIndex uint64
	DepositLeaf  [32]byte
	MerkleProof  [][32]byte
	Recipient    [20]byte
	Pubkey       [32]byte
	Salt         [32]byte
}

// ClaimWitness carries one deposit's claim-circuit inputs plus the prior
// cyclic proof's claim hash, chaining a batch of claims into a single
// wrapped proof.
type ClaimWitness struct {
	DepositLeaf   [32]byte
	DepositIndex  uint64
	EligibleAmount [32]byte
	MerkleProof   [][32]byte
	Salt          [32]byte
	PrevClaimHash [32]byte
}

// InnerProof is an opaque Plonky2 proof blob, passed through to the
// wrapper prover without interpretation by the pipelines.
type InnerProof []byte

// InnerProver produces Plonky2 inner proofs. Claim proving is modeled as a
// left-fold over a batch's witnesses with an accumulator: prev is nil for
// the first witness in a batch and the previous call's output thereafter.
type InnerProver interface {
	ProveWithdrawal(ctx context.Context, witness WithdrawalWitness) (InnerProof, error)
	ProveClaim(ctx context.Context, witness ClaimWitness, prev InnerProof) (InnerProof, error)
}

// JobStatus is the Gnark wrapper prover's polled job state.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// OuterProof is the EVM-verifiable wrapped proof bytes the chain adapter
// submits on-chain.
type OuterProof []byte

// WrapperProver starts and polls a remote Gnark wrapping job for one inner
// proof.
type WrapperProver interface {
	// StartProof submits innerProof for wrapping and returns the assigned
	// job id plus the server's estimated completion time.
	StartProof(ctx context.Context, address [20]byte, innerProof InnerProof, publicInputs []byte) (jobID string, estimatedMs int64, err error)
	// GetProof polls one job's status. result is only populated when status
	// is JobDone.
	GetProof(ctx context.Context, jobID string) (status JobStatus, result OuterProof, err error)
}
