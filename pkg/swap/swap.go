// Package swap defines the domain model for cross-chain atomic swaps.
package swap

import (
	"time"
)

// Status represents the current state of a cross-chain swap
type Status string

const (
	// StatusPending swap record created; source HTLC may or may not be funded yet.
	StatusPending Status = "pending"
	// StatusPoolFulfilled the pool has funded the destination HTLC.
	StatusPoolFulfilled Status = "pool_fulfilled"
	// StatusUserClaimed the beneficiary claimed the destination HTLC. Terminal.
	StatusUserClaimed Status = "user_claimed"
	// StatusExpired the timelock passed without settlement. Terminal.
	StatusExpired Status = "expired"
	// StatusCancelled the initiator cancelled before funding. Terminal.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusUserClaimed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Request is one cross-chain atomic swap attempt. Amounts are decimal
// strings in token minor units. HashLock is a 0x-prefixed keccak256 digest
// of a preimage chosen by the initiator; the preimage itself is never
// persisted by the resolver.
type Request struct {
	ID                 string
	UserAddress        string
	BeneficiaryAddress string
	SourceChain        string
	DestinationChain   string
	SourceToken        string
	DestinationToken   string
	SourceAmount       string
	ExpectedAmount     string
	HashLock           string
	UserHTLCContract   string
	PoolHTLCContract   string
	UserFundingTx      string
	PoolFundingTx      string
	UserClaimTx        string
	PoolClaimTx        string
	Timelock           time.Time
	PoolTimelock       *time.Time
	Status             Status
	LastError          string
	AttemptCount       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PoolClaimedAt      *time.Time
	UserClaimedAt      *time.Time
}

// FulfillmentCandidate reports whether the pool may act on this swap:
// user side funded, pool side not yet, still pending and unexpired.
func (r *Request) FulfillmentCandidate(now time.Time) bool {
	return r.Status == StatusPending &&
		r.UserHTLCContract != "" &&
		r.PoolHTLCContract == "" &&
		now.Before(r.Timelock)
}

// Cancellable reports whether the initiator may still cancel. Once the
// source HTLC is funded the tokens are locked on-chain and only
// expiry/refund can release them.
func (r *Request) Cancellable() bool {
	return r.Status == StatusPending && r.UserHTLCContract == ""
}

// Liquidity is the pool's position for one token on one chain. The
// invariant Total == Available + Reserved holds at all times; it is
// maintained by only ever mutating the row through the store's atomic
// reserve/release/commit operations.
type Liquidity struct {
	Chain        string
	TokenAddress string
	Total        string
	Available    string
	Reserved     string
	MinThreshold string
	UpdatedAt    time.Time
}

// OrphanedHTLC is a destination HTLC funded by an agent that lost the
// fulfillment race. The winning HTLC serves the swap; the duplicate stays
// locked on-chain with its liquidity reservation held until the sweep
// refunds it after its timelock, or commits the reservation when the
// beneficiary claimed the duplicate as well.
type OrphanedHTLC struct {
	ID           int64
	SwapID       string
	Chain        string
	TokenAddress string
	ContractID   string
	Amount       string
	Timelock     time.Time
	RefundTx     string
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// RelayClaim is an audit row for one gasless claim submitted by the relay
// on behalf of a beneficiary. The rolling-window rate limit counts these.
type RelayClaim struct {
	ID          int64
	SwapID      string
	Beneficiary string
	ContractID  string
	TxRef       string
	CreatedAt   time.Time
}
