package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestMixerABI_Parses(t *testing.T) {
	m, err := NewMixer(common.HexToAddress("0x1"), nil)
	require.NoError(t, err)
	require.Contains(t, m.ABI().Events, "Deposited")
	require.Contains(t, m.ABI().Events, "DepositLeafInserted")
	require.Contains(t, m.ABI().Methods, "getDepositData")
}

func TestDepositData_IsDefault(t *testing.T) {
	require.True(t, DepositData{}.IsDefault())
	require.True(t, DepositData{Amount: big.NewInt(0)}.IsDefault())
	require.False(t, DepositData{IsRejected: true}.IsDefault())
	require.False(t, DepositData{Sender: common.HexToAddress("0xabc")}.IsDefault())
	require.False(t, DepositData{Amount: big.NewInt(5)}.IsDefault())
}
