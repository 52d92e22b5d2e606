package chainadapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAwaitCapacity_DoesNotBlockWithinBudget(t *testing.T) {
	start := time.Now()
	awaitCapacity()
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestReadCache_SetAndGet(t *testing.T) {
	readCache.SetDefault("test-key", uint64(42))
	v, ok := readCache.Get("test-key")
	require.True(t, ok)
	require.Equal(t, uint64(42), v.(uint64))
}
