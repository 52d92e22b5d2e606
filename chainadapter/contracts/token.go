package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// TokenABI is the minimal ERC-20 surface the agent reads balances from.
const TokenABI = `[
{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[
	{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"decimals","type":"function","stateMutability":"view","inputs":[],
	"outputs":[{"name":"","type":"uint8"}]}
]`

// Token is a read-only ERC-20 binding.
type Token struct {
	address common.Address
	bound   *bind.BoundContract
}

// NewToken binds Token to an already-deployed ERC-20 contract address.
func NewToken(address common.Address, backend bind.ContractBackend) (*Token, error) {
	parsed, err := abi.JSON(strings.NewReader(TokenABI))
	if err != nil {
		return nil, err
	}
	return &Token{address: address, bound: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

// Address of the bound token contract.
func (tk *Token) Address() common.Address { return tk.address }

// BalanceOf reads account's token balance.
func (tk *Token) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := tk.bound.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Decimals reads the token's decimal precision.
func (tk *Token) Decimals(opts *bind.CallOpts) (uint8, error) {
	var out []interface{}
	if err := tk.bound.Call(opts, &out, "decimals"); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}
