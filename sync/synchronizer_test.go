package sync

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/zkmining/miner-cli/chainadapter"
)

type fakeChainReader struct {
	events        []chainadapter.DepositLeafInsertedEvent
	rootBlockNums map[[32]byte]uint64
	currentRoot   [32]byte
}

func (f *fakeChainReader) QueryDepositLeafInsertedEvents(ctx context.Context, fromBlock uint64) ([]chainadapter.DepositLeafInsertedEvent, error) {
	return f.events, nil
}

func (f *fakeChainReader) DepositRootBlockNumber(ctx context.Context, root [32]byte) (uint64, error) {
	return f.rootBlockNums[root], nil
}

func (f *fakeChainReader) CurrentDepositRoot(ctx context.Context) ([32]byte, error) {
	return f.currentRoot, nil
}

func newTestStore(t *testing.T) *Store {
	dir, err := ioutil.TempDir("", "sync-store-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func leafHashFor(n byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256([]byte{n}))
	return out
}

func TestSynchronizer_TailDepositEvents_RejectsGap(t *testing.T) {
	store := newTestStore(t)
	fake := &fakeChainReader{
		events: []chainadapter.DepositLeafInsertedEvent{
			{DepositIndex: 0, DepositHash: leafHashFor(0), BlockNumber: 10},
			{DepositIndex: 2, DepositHash: leafHashFor(2), BlockNumber: 11}, // gap: index 1 missing
		},
	}
	sync, err := NewSynchronizer(fake, store, NewSnapshotSource("http://example.invalid"))
	require.NoError(t, err)

	err = sync.tailDepositEvents(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Deposit index mismatch")
}

func TestSynchronizer_TailDepositEvents_AppendsContiguousRun(t *testing.T) {
	store := newTestStore(t)
	fake := &fakeChainReader{
		events: []chainadapter.DepositLeafInsertedEvent{
			{DepositIndex: 0, DepositHash: leafHashFor(0), BlockNumber: 10},
			{DepositIndex: 1, DepositHash: leafHashFor(1), BlockNumber: 11},
		},
	}
	sync, err := NewSynchronizer(fake, store, NewSnapshotSource("http://example.invalid"))
	require.NoError(t, err)

	require.NoError(t, sync.tailDepositEvents(context.Background()))
	require.Equal(t, uint64(2), sync.DepositTree.Len())
	require.Equal(t, uint64(11), sync.DepositTree.Watermark())
}

func TestSynchronizer_VerifyRoot_FatalWhenRootNeverExisted(t *testing.T) {
	store := newTestStore(t)
	fake := &fakeChainReader{rootBlockNums: map[[32]byte]uint64{}}
	sync, err := NewSynchronizer(fake, store, NewSnapshotSource("http://example.invalid"))
	require.NoError(t, err)

	err = sync.verifyRoot(context.Background())
	require.ErrorIs(t, err, chainadapter.ErrRootNeverExisted)
}

func TestSynchronizer_VerifyRoot_PassesWhenRootRecorded(t *testing.T) {
	store := newTestStore(t)
	sync, err := NewSynchronizer(&fakeChainReader{}, store, NewSnapshotSource("http://example.invalid"))
	require.NoError(t, err)
	root := sync.DepositTree.Root()
	sync.adapter = &fakeChainReader{
		rootBlockNums: map[[32]byte]uint64{root: 5},
		currentRoot:   root,
	}
	require.NoError(t, sync.verifyRoot(context.Background()))
}

func TestSynchronizer_VerifyRoot_WarnsButPassesOnRootMismatch(t *testing.T) {
	store := newTestStore(t)
	sync, err := NewSynchronizer(&fakeChainReader{}, store, NewSnapshotSource("http://example.invalid"))
	require.NoError(t, err)
	root := sync.DepositTree.Root()
	mismatched := leafHashFor(99)
	sync.adapter = &fakeChainReader{
		rootBlockNums: map[[32]byte]uint64{root: 5},
		currentRoot:   mismatched,
	}
	require.NoError(t, sync.verifyRoot(context.Background()))
}
