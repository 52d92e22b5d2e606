// Package contracts holds abigen-style typed bindings for the three ABI
// surfaces the mining agent talks to: the mixer (deposit/withdraw/cancel),
// the minter (claim, eligibility roots, nullifiers), and a plain ERC-20 for
// balance reads. Generated the way contracts/deposit-contract/depositContract.go
// is generated, but hand-trimmed to the methods and events this agent uses.
package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MixerABI is the subset of the mixer contract's ABI this agent calls.
const MixerABI = `[
{"name":"Deposited","type":"event","anonymous":false,"inputs":[
	{"name":"depositId","type":"uint256","indexed":true},
	{"name":"sender","type":"address","indexed":true},
	{"name":"recipientSaltHash","type":"bytes32","indexed":false},
	{"name":"tokenIndex","type":"uint32","indexed":false},
	{"name":"amount","type":"uint256","indexed":false}]},
{"name":"DepositLeafInserted","type":"event","anonymous":false,"inputs":[
	{"name":"depositIndex","type":"uint32","indexed":false},
	{"name":"depositHash","type":"bytes32","indexed":false}]},
{"name":"Withdrawn","type":"event","anonymous":false,"inputs":[
	{"name":"recipient","type":"address","indexed":true}]},
{"name":"depositRoots","type":"function","stateMutability":"view","inputs":[
	{"name":"root","type":"bytes32"}],"outputs":[{"name":"blockNumber","type":"uint256"}]},
{"name":"currentDepositRoot","type":"function","stateMutability":"view","inputs":[],
	"outputs":[{"name":"","type":"bytes32"}]},
{"name":"getDepositData","type":"function","stateMutability":"view","inputs":[
	{"name":"depositId","type":"uint256"}],"outputs":[
	{"name":"isRejected","type":"bool"},
	{"name":"sender","type":"address"},
	{"name":"recipientSaltHash","type":"bytes32"},
	{"name":"tokenIndex","type":"uint32"},
	{"name":"amount","type":"uint256"}]},
{"name":"lastProcessedDepositId","type":"function","stateMutability":"view","inputs":[],
	"outputs":[{"name":"","type":"uint256"}]},
{"name":"nullifiers","type":"function","stateMutability":"view","inputs":[
	{"name":"nullifier","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"depositNativeToken","type":"function","stateMutability":"payable","inputs":[
	{"name":"recipientSaltHash","type":"bytes32"}],"outputs":[]},
{"name":"cancelDeposit","type":"function","stateMutability":"nonpayable","inputs":[
	{"name":"depositId","type":"uint256"},
	{"name":"recipientSaltHash","type":"bytes32"},
	{"name":"tokenIndex","type":"uint32"},
	{"name":"amount","type":"uint256"}],"outputs":[]},
{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[
	{"name":"publicInputs","type":"bytes"},
	{"name":"proof","type":"bytes"}],"outputs":[]}
]`

// Mixer is a typed binding to the mixer contract.
type Mixer struct {
	address common.Address
	backend bind.ContractBackend
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewMixer binds a Mixer to an already-deployed contract address.
func NewMixer(address common.Address, backend bind.ContractBackend) (*Mixer, error) {
	parsed, err := abi.JSON(strings.NewReader(MixerABI))
	if err != nil {
		return nil, err
	}
	return &Mixer{
		address: address,
		backend: backend,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address of the bound mixer contract.
func (m *Mixer) Address() common.Address { return m.address }

// ABI of the bound mixer contract, exposed so the event-log filterer in
// chainadapter can unpack raw logs without re-parsing the ABI JSON.
func (m *Mixer) ABI() abi.ABI { return m.abi }

// DepositRootBlockNumber returns the block a given deposit root was recorded
// at, or zero if the root never existed on chain.
func (m *Mixer) DepositRootBlockNumber(opts *bind.CallOpts, root [32]byte) (*big.Int, error) {
	var out []interface{}
	err := m.bound.Call(opts, &out, "depositRoots", root)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// CurrentDepositRoot reads the contract's current deposit tree root.
func (m *Mixer) CurrentDepositRoot(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "currentDepositRoot"); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// DepositData is the on-chain record returned by getDepositData.
type DepositData struct {
	IsRejected        bool
	Sender            common.Address
	RecipientSaltHash [32]byte
	TokenIndex        uint32
	Amount            *big.Int
}

// IsDefault reports whether d is the contract's zero-value default record,
// treated as "cancelled" for a deposit id that was never recorded.
func (d DepositData) IsDefault() bool {
	if d.IsRejected || d.Sender != (common.Address{}) {
		return false
	}
	return d.Amount == nil || d.Amount.Sign() == 0
}

// GetDepositData reads the contract's record for depositId.
func (m *Mixer) GetDepositData(opts *bind.CallOpts, depositID *big.Int) (DepositData, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "getDepositData", depositID); err != nil {
		return DepositData{}, err
	}
	return DepositData{
		IsRejected:        *abi.ConvertType(out[0], new(bool)).(*bool),
		Sender:            *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		RecipientSaltHash: *abi.ConvertType(out[2], new([32]byte)).(*[32]byte),
		TokenIndex:        *abi.ConvertType(out[3], new(uint32)).(*uint32),
		Amount:            *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
	}, nil
}

// LastProcessedDepositID returns the contract's high-watermark deposit id.
func (m *Mixer) LastProcessedDepositID(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "lastProcessedDepositId"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Nullifier reads the mixer's withdrawal-nullifier registry entry.
func (m *Mixer) Nullifier(opts *bind.CallOpts, nullifier [32]byte) (*big.Int, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "nullifiers", nullifier); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// DepositNativeToken submits a deposit transaction.
func (m *Mixer) DepositNativeToken(opts *bind.TransactOpts, recipientSaltHash [32]byte) (*types.Transaction, error) {
	return m.bound.Transact(opts, "depositNativeToken", recipientSaltHash)
}

// CancelDeposit submits a cancellation transaction for a rejected deposit.
func (m *Mixer) CancelDeposit(opts *bind.TransactOpts, depositID *big.Int, recipientSaltHash [32]byte, tokenIndex uint32, amount *big.Int) (*types.Transaction, error) {
	return m.bound.Transact(opts, "cancelDeposit", depositID, recipientSaltHash, tokenIndex, amount)
}

// Withdraw submits a withdrawal proof.
func (m *Mixer) Withdraw(opts *bind.TransactOpts, publicInputs, proof []byte) (*types.Transaction, error) {
	return m.bound.Transact(opts, "withdraw", publicInputs, proof)
}
