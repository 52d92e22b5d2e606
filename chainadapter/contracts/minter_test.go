package contracts

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestMinterABI_Parses(t *testing.T) {
	m, err := NewMinter(common.HexToAddress("0x2"), nil)
	require.NoError(t, err)
	require.Contains(t, m.ABI().Methods, "eligibilityRoot")
	require.Contains(t, m.ABI().Methods, "isNullifierSpent")
	require.Contains(t, m.ABI().Methods, "submitClaims")
}

func TestTokenABI_Parses(t *testing.T) {
	tk, err := NewToken(common.HexToAddress("0x3"), nil)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x3"), tk.Address())
}
