package withdrawal

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/pipeline"
	"github.com/zkmining/miner-cli/proofengine"
)

func mustTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return priv
}

type fakeWriter struct {
	withdrawCalls int
	receipt       *types.Receipt
}

func (f *fakeWriter) Withdraw(context.Context, chainadapter.Signer, []byte, []byte, uint64) (*types.Receipt, error) {
	f.withdrawCalls++
	return f.receipt, nil
}
func (f *fakeWriter) NonceAt(context.Context, common.Address) (uint64, error) { return 1, nil }
func (f *fakeWriter) GasPrice(context.Context) (*big.Int, error)             { return big.NewInt(1), nil }

type fakeProver struct{}

func (fakeProver) ProveWithdrawal(context.Context, proofengine.WithdrawalWitness) (proofengine.InnerProof, error) {
	return proofengine.InnerProof{0x01}, nil
}
func (fakeProver) ProveClaim(context.Context, proofengine.ClaimWitness, proofengine.InnerProof) (proofengine.InnerProof, error) {
	return nil, nil
}

// fakeWrapper returns "pending" on the first poll and "done" on the second,
// matching S3's stubbed prover behavior.
type fakeWrapper struct {
	polls int
}

func (w *fakeWrapper) StartProof(context.Context, [20]byte, proofengine.InnerProof, []byte) (string, int64, error) {
	return "j1", 0, nil
}

func (w *fakeWrapper) GetProof(context.Context, string) (proofengine.JobStatus, proofengine.OuterProof, error) {
	w.polls++
	if w.polls == 1 {
		return proofengine.JobPending, nil, nil
	}
	return proofengine.JobDone, proofengine.OuterProof{0xAB}, nil
}

func testDeposit() Deposit {
	return Deposit{
		DepositID:    big.NewInt(10),
		DepositIndex: 0,
		DepositLeaf:  [32]byte{0x01},
		DepositRoot:  [32]byte{0x02},
		MerkleProof:  [][32]byte{{0x03}},
		Pubkey:       big.NewInt(42),
		Salt:         big.NewInt(7),
	}
}

func TestPipeline_FreshRunCompletesAllSteps(t *testing.T) {
	dir := t.TempDir()
	writer := &fakeWriter{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	wrapper := &fakeWrapper{}
	p := &Pipeline{
		StatusPath:        filepath.Join(dir, "withdrawal_temp.json"),
		Adapter:           writer,
		Prover:            fakeProver{},
		Wrapper:           wrapper,
		Signer:            chainadapter.NewSigner(mustTestKey(t)),
		MaxGasPriceWei:    big.NewInt(100),
		GasRetryInterval:  time.Millisecond,
		GnarkPollInterval: time.Millisecond,
		WithdrawalAddress: [20]byte{0xEE},
	}

	receipt, err := p.Run(context.Background(), testDeposit())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, 1, writer.withdrawCalls)
	_, err = os.Stat(p.StatusPath)
	require.True(t, os.IsNotExist(err), "status file must be deleted after successful submission")
}

// S3: resume from a persisted GnarkFetch status — pipeline advances to
// ContractCall, submits exactly one tx, deletes the status file.
func TestPipeline_ResumeFromGnarkFetch(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "withdrawal_temp.json")
	existing := Status{
		NextStep: pipeline.StepGnarkFetch,
		Witness: &proofengine.WithdrawalWitness{
			DepositRoot: [32]byte{0x02},
			Recipient:   [20]byte{0xEE},
		},
		JobID:          "j1",
		StartQueryTime: time.Now().Add(-10 * time.Second).Unix(),
	}
	require.NoError(t, pipeline.SaveStatus(statusPath, existing))

	writer := &fakeWriter{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	wrapper := &fakeWrapper{}
	p := &Pipeline{
		StatusPath:        statusPath,
		Adapter:           writer,
		Prover:            fakeProver{},
		Wrapper:           wrapper,
		Signer:            chainadapter.NewSigner(mustTestKey(t)),
		MaxGasPriceWei:    big.NewInt(100),
		GasRetryInterval:  time.Millisecond,
		GnarkPollInterval: time.Millisecond,
		WithdrawalAddress: [20]byte{0xEE},
	}

	receipt, err := p.Run(context.Background(), testDeposit())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, 1, writer.withdrawCalls)
	require.Equal(t, 2, wrapper.polls, "first poll pending, second done")
	_, err = os.Stat(statusPath)
	require.True(t, os.IsNotExist(err), "status file must be deleted after submission")
}
