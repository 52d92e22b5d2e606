package proofengine

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"
)

// Plonky2Client drives a local Plonky2 prover binary as a subprocess,
// feeding it a JSON-encoded witness on stdin and reading a raw proof back
// on stdout. The inner circuits themselves are out of scope here; this is
// only the process boundary between this agent and wherever that binary
// lives. No HTTP service is assumed for the inner prover the way
// GnarkClient assumes one for the wrapper: spec.md routes that proof
// through a remote service, but leaves the inner prover's deployment
// unspecified, so a local subprocess keyed on PATH is the least-assuming
// shape.
type Plonky2Client struct {
	binaryPath string
}

// NewPlonky2Client builds a client that shells out to binaryPath for every
// inner proof.
func NewPlonky2Client(binaryPath string) *Plonky2Client {
	return &Plonky2Client{binaryPath: binaryPath}
}

type withdrawalProveRequest struct {
	Mode    string            `json:"mode"`
	Witness WithdrawalWitness `json:"witness"`
}

type claimProveRequest struct {
	Mode    string       `json:"mode"`
	Witness ClaimWitness `json:"witness"`
	Prev    InnerProof   `json:"prev,omitempty"`
}

// ProveWithdrawal implements InnerProver.
func (c *Plonky2Client) ProveWithdrawal(ctx context.Context, witness WithdrawalWitness) (InnerProof, error) {
	body, err := json.Marshal(withdrawalProveRequest{Mode: "withdrawal", Witness: witness})
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal withdrawal witness")
	}
	return c.run(ctx, body)
}

// ProveClaim implements InnerProver, folding prev in as the cyclic
// accumulator for this witness.
func (c *Plonky2Client) ProveClaim(ctx context.Context, witness ClaimWitness, prev InnerProof) (InnerProof, error) {
	body, err := json.Marshal(claimProveRequest{Mode: "claim", Witness: witness, Prev: prev})
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal claim witness")
	}
	return c.run(ctx, body)
}

func (c *Plonky2Client) run(ctx context.Context, stdin []byte) (InnerProof, error) {
	cmd := exec.CommandContext(ctx, c.binaryPath)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "plonky2 prover failed: %s", stderr.String())
	}
	return InnerProof(stdout.Bytes()), nil
}
