package gaspolicy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stepReader struct {
	prices []*big.Int
	calls  int
}

func (s *stepReader) GasPrice(context.Context) (*big.Int, error) {
	price := s.prices[s.calls]
	if s.calls < len(s.prices)-1 {
		s.calls++
	}
	return price, nil
}

func TestWaitForAcceptableGas_BlocksThenReturns(t *testing.T) {
	reader := &stepReader{prices: []*big.Int{big.NewInt(100), big.NewInt(100), big.NewInt(10)}}
	err := WaitForAcceptableGas(context.Background(), reader, big.NewInt(50), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, reader.calls)
}

func TestClampPriorityFee(t *testing.T) {
	require.Equal(t, big.NewInt(5), ClampPriorityFee(big.NewInt(10), big.NewInt(5)))
	require.Equal(t, big.NewInt(3), ClampPriorityFee(big.NewInt(3), big.NewInt(5)))
}
