package swapstore

import (
	"context"
	"errors"
	"time"

	"github.com/swapsage/resolver/pkg/swap"
)

// ErrSwapNotFound is returned when a swap lookup finds no matching record.
var ErrSwapNotFound = errors.New("swap not found")

// ErrLiquidityNotFound is returned when no liquidity row exists for a chain/token pair.
var ErrLiquidityNotFound = errors.New("liquidity not found")

// SwapStore defines swap record persistence. All status transitions go
// through compare-and-swap style conditional updates: the caller states the
// expected predecessor and inspects the reported outcome, so concurrent
// writers never silently overwrite each other.
type SwapStore interface {
	CreateSwapRequest(ctx context.Context, req *swap.Request) error
	GetSwapRequest(ctx context.Context, id string) (*swap.Request, error)
	GetSwapsByUser(ctx context.Context, userAddress string, limit int) ([]*swap.Request, error)
	GetPendingSwaps(ctx context.Context, limit int) ([]*swap.Request, error)
	GetFulfillmentCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error)
	GetSettlementCandidates(ctx context.Context, limit int) ([]*swap.Request, error)
	GetExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error)

	// SetUserHTLC records the user-side HTLC contract ID and funding tx.
	// Returns false if the contract was already set (no write happens).
	SetUserHTLC(ctx context.Context, id, contractID, txRef string) (bool, error)
	// SetPoolHTLC transitions pending -> pool_fulfilled and records the
	// pool-side contract in one statement. Returns false on CAS mismatch.
	SetPoolHTLC(ctx context.Context, id, contractID, txRef string, poolTimelock time.Time) (bool, error)
	// UpdateStatus performs a bare compare-and-swap on status.
	UpdateStatus(ctx context.Context, id string, from, to swap.Status) (bool, error)
	// SetUserClaimed transitions pool_fulfilled -> user_claimed recording the claim tx.
	SetUserClaimed(ctx context.Context, id, txRef string, at time.Time) (bool, error)
	// SetPoolClaimed records the pool's own source-side claim.
	SetPoolClaimed(ctx context.Context, id, txRef string, at time.Time) error
	// RecordAttemptError appends an audit note for a failed attempt.
	RecordAttemptError(ctx context.Context, id, message string) error
}

// LiquidityStore defines the atomic pool liquidity operations. Reserve and
// release are single-statement read-modify-writes; the available balance is
// never read then written in two steps from application code.
type LiquidityStore interface {
	GetLiquidity(ctx context.Context, chain, token string) (*swap.Liquidity, error)
	UpsertLiquidity(ctx context.Context, liq *swap.Liquidity) error
	// ReserveLiquidity moves amount available -> reserved. Fails closed:
	// returns false without partial effect when available < amount.
	ReserveLiquidity(ctx context.Context, chain, token, amount string) (bool, error)
	// ReleaseLiquidity moves amount reserved -> available.
	ReleaseLiquidity(ctx context.Context, chain, token, amount string) error
	// CommitLiquidity removes amount from reserved and total: the tokens
	// have left the pool for good (claimed by the beneficiary).
	CommitLiquidity(ctx context.Context, chain, token, amount string) error
	// CreditLiquidity adds amount to total and available: the pool claimed
	// the source-side HTLC.
	CreditLiquidity(ctx context.Context, chain, token, amount string) error
}

// OrphanStore tracks destination HTLCs funded by an agent that lost a
// fulfillment race. The duplicate's liquidity reservation stays held until
// the sweep refunds the on-chain contract, or commits the reservation when
// the beneficiary claimed the duplicate as well.
type OrphanStore interface {
	InsertOrphanedHTLC(ctx context.Context, orphan *swap.OrphanedHTLC) error
	// GetUnresolvedOrphans lists unresolved duplicates whose timelock has
	// passed, oldest timelock first.
	GetUnresolvedOrphans(ctx context.Context, now time.Time, limit int) ([]*swap.OrphanedHTLC, error)
	// ResolveOrphanedHTLC marks a duplicate recovered, recording the refund
	// tx when one was sent. Repeats are no-ops.
	ResolveOrphanedHTLC(ctx context.Context, id int64, txRef string, at time.Time) error
}

// RelayClaimStore defines relay claim audit persistence, which also backs
// the relay's rolling-window rate limit.
type RelayClaimStore interface {
	InsertRelayClaim(ctx context.Context, claim *swap.RelayClaim) error
	CountRelayClaimsSince(ctx context.Context, beneficiary string, since time.Time) (int, error)
}

// Store is the full persistence contract consumed by the coordinator,
// fulfillment agent, and claim relay.
type Store interface {
	SwapStore
	LiquidityStore
	OrphanStore
	RelayClaimStore
}
