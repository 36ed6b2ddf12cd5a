// Package contracts wraps the deployed HashedTimelockERC20 and ERC20
// contracts behind bound-contract callers.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const htlcABI = `[
	{"type":"function","name":"newContract","stateMutability":"nonpayable","inputs":[{"name":"_receiver","type":"address"},{"name":"_hashlock","type":"bytes32"},{"name":"_timelock","type":"uint256"},{"name":"_tokenContract","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"contractId","type":"bytes32"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"_contractId","type":"bytes32"},{"name":"_preimage","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"_contractId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getContract","stateMutability":"view","inputs":[{"name":"_contractId","type":"bytes32"}],"outputs":[{"name":"sender","type":"address"},{"name":"receiver","type":"address"},{"name":"tokenContract","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"},{"name":"withdrawn","type":"bool"},{"name":"refunded","type":"bool"},{"name":"preimage","type":"bytes32"}]},
	{"type":"event","name":"HTLCERC20New","inputs":[{"name":"contractId","type":"bytes32","indexed":true},{"name":"sender","type":"address","indexed":true},{"name":"receiver","type":"address","indexed":true},{"name":"tokenContract","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"hashlock","type":"bytes32","indexed":false},{"name":"timelock","type":"uint256","indexed":false}]},
	{"type":"event","name":"HTLCERC20Withdraw","inputs":[{"name":"contractId","type":"bytes32","indexed":true}]},
	{"type":"event","name":"HTLCERC20Refund","inputs":[{"name":"contractId","type":"bytes32","indexed":true}]}
]`

// HTLCDetails mirrors the tuple returned by getContract. A zero Sender means
// no contract exists for the queried ID.
type HTLCDetails struct {
	Sender        common.Address
	Receiver      common.Address
	TokenContract common.Address
	Amount        *big.Int
	Hashlock      [32]byte
	Timelock      *big.Int
	Withdrawn     bool
	Refunded      bool
	Preimage      [32]byte
}

// HTLC binds to a deployed HashedTimelockERC20 contract.
type HTLC struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewHTLC creates a bound instance of the HTLC contract at the given address.
func NewHTLC(address common.Address, backend bind.ContractBackend) (*HTLC, error) {
	parsed, err := abi.JSON(strings.NewReader(htlcABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTLC ABI: %w", err)
	}
	return &HTLC{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the deployed contract address.
func (h *HTLC) Address() common.Address {
	return h.address
}

// GetContract reads the full state of one HTLC.
func (h *HTLC) GetContract(opts *bind.CallOpts, contractID [32]byte) (*HTLCDetails, error) {
	var out []interface{}
	if err := h.contract.Call(opts, &out, "getContract", contractID); err != nil {
		return nil, err
	}
	return &HTLCDetails{
		Sender:        *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Receiver:      *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		TokenContract: *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		Amount:        abi.ConvertType(out[3], new(big.Int)).(*big.Int),
		Hashlock:      *abi.ConvertType(out[4], new([32]byte)).(*[32]byte),
		Timelock:      abi.ConvertType(out[5], new(big.Int)).(*big.Int),
		Withdrawn:     *abi.ConvertType(out[6], new(bool)).(*bool),
		Refunded:      *abi.ConvertType(out[7], new(bool)).(*bool),
		Preimage:      *abi.ConvertType(out[8], new([32]byte)).(*[32]byte),
	}, nil
}

// NewContract locks tokens into a new HTLC.
func (h *HTLC) NewContract(opts *bind.TransactOpts, receiver common.Address, hashlock [32]byte, timelock *big.Int, tokenContract common.Address, amount *big.Int) (*types.Transaction, error) {
	return h.contract.Transact(opts, "newContract", receiver, hashlock, timelock, tokenContract, amount)
}

// Withdraw claims an HTLC with the preimage.
func (h *HTLC) Withdraw(opts *bind.TransactOpts, contractID, preimage [32]byte) (*types.Transaction, error) {
	return h.contract.Transact(opts, "withdraw", contractID, preimage)
}

// Refund reclaims an expired HTLC.
func (h *HTLC) Refund(opts *bind.TransactOpts, contractID [32]byte) (*types.Transaction, error) {
	return h.contract.Transact(opts, "refund", contractID)
}

// ParseNewContractID extracts the contract ID from the HTLCERC20New event in
// a funding transaction receipt.
func (h *HTLC) ParseNewContractID(receipt *types.Receipt) ([32]byte, error) {
	eventID := h.abi.Events["HTLCERC20New"].ID
	for _, log := range receipt.Logs {
		if log.Address != h.address || len(log.Topics) < 2 || log.Topics[0] != eventID {
			continue
		}
		return [32]byte(log.Topics[1]), nil
	}
	return [32]byte{}, fmt.Errorf("receipt %s contains no HTLCERC20New event", receipt.TxHash.Hex())
}
