package chainadapter

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBumpFee_UsesPriorTimes125WhenEstimateIsLower(t *testing.T) {
	prior := big.NewInt(1000)
	estimate := big.NewInt(900) // lower than prior, per scenario S4
	got := bumpFee(prior, estimate)
	require.Equal(t, big.NewInt(1250), got)
}

func TestBumpFee_UsesEstimateWhenHigherThanFloor(t *testing.T) {
	prior := big.NewInt(1000)
	estimate := big.NewInt(2000)
	got := bumpFee(prior, estimate)
	require.Equal(t, estimate, got)
}

func TestBumpFee_MonotonicAcrossRepeatedBumps(t *testing.T) {
	fee := big.NewInt(1000)
	lowEstimate := big.NewInt(1)
	for i := 0; i < 3; i++ {
		next := bumpFee(fee, lowEstimate)
		require.Equal(t, 1, next.Cmp(fee), "bump %d must strictly increase the fee", i)
		fee = next
	}
}
