package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MinterABI is the subset of the minter/claim contract's ABI this agent calls.
const MinterABI = `[
{"name":"ClaimsSubmitted","type":"event","anonymous":false,"inputs":[
	{"name":"claimHash","type":"bytes32","indexed":true},
	{"name":"prevClaimHash","type":"bytes32","indexed":false}]},
{"name":"eligibilityRoot","type":"function","stateMutability":"view","inputs":[
	{"name":"term","type":"uint8"}],"outputs":[{"name":"","type":"bytes32"}]},
{"name":"isNullifierSpent","type":"function","stateMutability":"view","inputs":[
	{"name":"nullifier","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
{"name":"lastClaimHash","type":"function","stateMutability":"view","inputs":[],
	"outputs":[{"name":"","type":"bytes32"}]},
{"name":"submitClaims","type":"function","stateMutability":"nonpayable","inputs":[
	{"name":"prevClaimHash","type":"bytes32"},
	{"name":"publicInputs","type":"bytes"},
	{"name":"proof","type":"bytes"}],"outputs":[{"name":"newClaimHash","type":"bytes32"}]}
]`

// Minter is a typed binding to the minter/claim contract.
type Minter struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewMinter binds a Minter to an already-deployed contract address.
func NewMinter(address common.Address, backend bind.ContractBackend) (*Minter, error) {
	parsed, err := abi.JSON(strings.NewReader(MinterABI))
	if err != nil {
		return nil, err
	}
	return &Minter{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address of the bound minter contract.
func (m *Minter) Address() common.Address { return m.address }

// ABI of the bound minter contract.
func (m *Minter) ABI() abi.ABI { return m.abi }

// EligibilityRoot reads the on-chain eligibility root published for a term
// (0 = short, 1 = long, matching spec's two-term model).
func (m *Minter) EligibilityRoot(opts *bind.CallOpts, term uint8) ([32]byte, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "eligibilityRoot", term); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// IsNullifierSpent checks the claim contract's nullifier set.
func (m *Minter) IsNullifierSpent(opts *bind.CallOpts, nullifier [32]byte) (bool, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "isNullifierSpent", nullifier); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// LastClaimHash reads the contract's current claim-chain tip, used to chain
// prev_claim_hash -> new_claim_hash across a batch of submissions.
func (m *Minter) LastClaimHash(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := m.bound.Call(opts, &out, "lastClaimHash"); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// SubmitClaims submits a batch claim transaction chained off prevClaimHash.
func (m *Minter) SubmitClaims(opts *bind.TransactOpts, prevClaimHash [32]byte, publicInputs, proof []byte) (*types.Transaction, error) {
	return m.bound.Transact(opts, "submitClaims", prevClaimHash, publicInputs, proof)
}
