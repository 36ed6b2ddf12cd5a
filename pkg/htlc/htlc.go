// Package htlc defines the chain adapter contract for hash time locked
// contracts and the shared hash lock helpers.
package htlc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/swapsage/resolver/pkg/app/errors"
)

// State is the lifecycle state of an on-chain HTLC.
type State int

const (
	// StateInvalid no contract exists for the queried ID.
	StateInvalid State = iota
	// StateActive funded, not yet claimed or refunded.
	StateActive
	// StateClaimed the beneficiary withdrew with the preimage. Terminal.
	StateClaimed
	// StateRefunded the originator reclaimed after the timelock. Terminal.
	StateRefunded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClaimed:
		return "claimed"
	case StateRefunded:
		return "refunded"
	default:
		return "invalid"
	}
}

// FundParams are the inputs for locking tokens into a new HTLC.
type FundParams struct {
	Token       string
	Beneficiary string
	HashLock    string
	// Amount in token minor units, base-10.
	Amount   string
	Timelock time.Time
}

// ContractState is a snapshot of one on-chain HTLC. Preimage is empty until
// the contract has been claimed; afterwards it is public on-chain data.
type ContractState struct {
	ContractID  string
	Originator  string
	Beneficiary string
	Token       string
	Amount      string
	HashLock    string
	Preimage    string
	Timelock    time.Time
	State       State
}

// Adapter abstracts one chain's HTLC operations. Implementations classify
// failures with the service error categories so callers can distinguish
// transient transport faults from definitive on-chain outcomes.
type Adapter interface {
	// Name returns the configured chain name ("sepolia", "base-sepolia").
	Name() string
	ChainID() int64
	// Approve raises the HTLC contract's allowance for the adapter's signer
	// to cover amount, sending an approval transaction only when the current
	// allowance is short. Fund never approves on its own.
	Approve(ctx context.Context, token, amount string) (txRef string, err error)
	// Fund locks tokens into a new HTLC and returns the contract ID and
	// funding transaction reference once the transaction is confirmed.
	// Requires a prior Approve covering the amount.
	Fund(ctx context.Context, params FundParams) (contractID, txRef string, err error)
	GetContractState(ctx context.Context, contractID string) (*ContractState, error)
	// Claim withdraws an active HTLC with the preimage.
	Claim(ctx context.Context, contractID, preimage string) (txRef string, err error)
	// Refund reclaims an expired HTLC for the originator.
	Refund(ctx context.Context, contractID string) (txRef string, err error)
}

// ParseHash validates and decodes a 0x-prefixed 32-byte hex string.
func ParseHash(s string) ([32]byte, error) {
	var out [32]byte
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return out, fmt.Errorf("expected 0x-prefixed 32-byte hex string, got %q", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return out, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	copy(out[:], raw)
	return out, nil
}

// HashPreimage computes the keccak256 hash lock for a 32-byte preimage.
func HashPreimage(preimage string) (string, error) {
	raw, err := ParseHash(preimage)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(crypto.Keccak256(raw[:])), nil
}

// VerifyPreimage checks preimage against hashLock before any transaction is
// spent on an attempt the contract would reject anyway.
func VerifyPreimage(preimage, hashLock string) error {
	got, err := HashPreimage(preimage)
	if err != nil {
		return apperrors.ValidationError(err, "malformed preimage")
	}
	if !strings.EqualFold(got, hashLock) {
		return apperrors.HashMismatchError(nil, "preimage does not match hash lock")
	}
	return nil
}
