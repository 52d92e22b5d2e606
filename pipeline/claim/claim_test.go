package claim

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/proofengine"
)

type fakeWriter struct {
	claimCalls        int
	lastPrevClaimHash [32]byte
	receipt           *types.Receipt
}

func (f *fakeWriter) ClaimTokens(_ context.Context, _ chainadapter.Signer, prevClaimHash [32]byte, _, _ []byte, _ uint64) (*types.Receipt, error) {
	f.claimCalls++
	f.lastPrevClaimHash = prevClaimHash
	return f.receipt, nil
}
func (f *fakeWriter) NonceAt(context.Context, common.Address) (uint64, error) { return 1, nil }
func (f *fakeWriter) GasPrice(context.Context) (*big.Int, error)             { return big.NewInt(1), nil }
func (f *fakeWriter) LastClaimHash(context.Context) ([32]byte, error)        { return [32]byte{}, nil }

type fakeProver struct {
	claimCalls int
	witnesses  []proofengine.ClaimWitness
}

func (fakeProver) ProveWithdrawal(context.Context, proofengine.WithdrawalWitness) (proofengine.InnerProof, error) {
	return nil, nil
}
func (p *fakeProver) ProveClaim(_ context.Context, witness proofengine.ClaimWitness, prev proofengine.InnerProof) (proofengine.InnerProof, error) {
	p.claimCalls++
	p.witnesses = append(p.witnesses, witness)
	return append(proofengine.InnerProof{}, prev...), nil
}

type fakeWrapper struct{}

func (fakeWrapper) StartProof(context.Context, [20]byte, proofengine.InnerProof, []byte) (string, int64, error) {
	return "j1", 0, nil
}
func (fakeWrapper) GetProof(context.Context, string) (proofengine.JobStatus, proofengine.OuterProof, error) {
	return proofengine.JobDone, proofengine.OuterProof{0x01}, nil
}

func mustTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return priv
}

// S6: four eligible deposits batched under MAX_CLAIMS=10. Expect a single
// batch, a single on-chain call, and the witnesses' prev_claim_hash chain
// from 0 through three intermediate hashes.
func TestPipeline_ClaimBatchChainsWitnesses(t *testing.T) {
	dir := t.TempDir()
	writer := &fakeWriter{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	prover := &fakeProver{}
	p := &Pipeline{
		StatusPath:        filepath.Join(dir, "claim_temp.json"),
		Adapter:           writer,
		Prover:            prover,
		Wrapper:           fakeWrapper{},
		Signer:            chainadapter.NewSigner(mustTestKey(t)),
		MaxGasPriceWei:    big.NewInt(100),
		GasRetryInterval:  time.Millisecond,
		GnarkPollInterval: time.Millisecond,
		WithdrawalAddress: [20]byte{0xEE},
	}

	batch := make([]Deposit, 4)
	for i := range batch {
		batch[i] = Deposit{
			DepositID:      big.NewInt(int64(i)),
			DepositIndex:   uint64(i),
			DepositLeaf:    [32]byte{byte(i + 1)},
			EligibleAmount: big.NewInt(1000),
			MerkleProof:    [][32]byte{{0x03}},
			Salt:           big.NewInt(7),
		}
	}

	receipt, err := p.Run(context.Background(), batch, true)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, 1, writer.claimCalls, "a single batch must produce exactly one on-chain call")
	require.Equal(t, 4, prover.claimCalls)
	require.Len(t, prover.witnesses, 4)
	require.Equal(t, [32]byte{}, prover.witnesses[0].PrevClaimHash, "the chain starts from the zero hash")
	for i := 1; i < len(prover.witnesses); i++ {
		require.Equal(t, claimChainHash(prover.witnesses[i-1].PrevClaimHash, batch[i-1].DepositLeaf), prover.witnesses[i].PrevClaimHash)
	}
	require.Equal(t, [32]byte{}, writer.lastPrevClaimHash, "the submitted prevClaimHash comes from the contract's own tip read, not the witness chain")
}

func TestPipeline_RejectsOversizedBatch(t *testing.T) {
	dir := t.TempDir()
	p := &Pipeline{StatusPath: filepath.Join(dir, "claim_temp.json")}
	batch := make([]Deposit, MaxClaims+1)
	_, err := p.Run(context.Background(), batch, true)
	require.Error(t, err)
}
