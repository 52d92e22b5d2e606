package cooldown

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSleepDuration_Deterministic(t *testing.T) {
	window := Window{Min: time.Second, Max: 10 * time.Second}
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	a := SleepDuration(1_700_000_000, addr, "deposit", window)
	b := SleepDuration(1_700_000_000, addr, "deposit", window)
	require.Equal(t, a, b)
	require.GreaterOrEqual(t, a, window.Min)
	require.Less(t, a, window.Max)
}

func TestSleepDuration_VariesByTag(t *testing.T) {
	window := Window{Min: time.Second, Max: 100 * time.Second}
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")

	deposit := SleepDuration(1_700_000_000, addr, "deposit", window)
	withdraw := SleepDuration(1_700_000_000, addr, "withdraw", window)
	require.NotEqual(t, deposit, withdraw)
}

func TestSleepDuration_VariesByAddress(t *testing.T) {
	window := Window{Min: time.Second, Max: 100 * time.Second}
	a := SleepDuration(1_700_000_000, common.HexToAddress("0x01"), "deposit", window)
	b := SleepDuration(1_700_000_000, common.HexToAddress("0x02"), "deposit", window)
	require.NotEqual(t, a, b)
}
