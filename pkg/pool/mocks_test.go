package pool

import (
	"context"
	"time"

	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

// MockStore implements Store with configurable function fields.
type MockStore struct {
	GetFulfillmentCandidatesFunc func(now time.Time, limit int) ([]*swap.Request, error)
	GetSettlementCandidatesFunc  func(limit int) ([]*swap.Request, error)
	GetExpiryCandidatesFunc      func(now time.Time, limit int) ([]*swap.Request, error)
	SetPoolHTLCFunc              func(id, contractID, txRef string, poolTimelock time.Time) (bool, error)
	SetPoolClaimedFunc           func(id, txRef string, at time.Time) error
	RecordAttemptErrorFunc       func(id, message string) error
	InsertOrphanedHTLCFunc       func(orphan *swap.OrphanedHTLC) error
	GetUnresolvedOrphansFunc     func(now time.Time, limit int) ([]*swap.OrphanedHTLC, error)
	ResolveOrphanedHTLCFunc      func(id int64, txRef string, at time.Time) error

	GetLiquidityFunc     func(chain, token string) (*swap.Liquidity, error)
	ReserveLiquidityFunc func(chain, token, amount string) (bool, error)
	ReleaseLiquidityFunc func(chain, token, amount string) error
	CommitLiquidityFunc  func(chain, token, amount string) error
	CreditLiquidityFunc  func(chain, token, amount string) error
}

func (m *MockStore) GetFulfillmentCandidates(_ context.Context, now time.Time, limit int) ([]*swap.Request, error) {
	if m.GetFulfillmentCandidatesFunc != nil {
		return m.GetFulfillmentCandidatesFunc(now, limit)
	}
	return nil, nil
}

func (m *MockStore) GetSettlementCandidates(_ context.Context, limit int) ([]*swap.Request, error) {
	if m.GetSettlementCandidatesFunc != nil {
		return m.GetSettlementCandidatesFunc(limit)
	}
	return nil, nil
}

func (m *MockStore) GetExpiryCandidates(_ context.Context, now time.Time, limit int) ([]*swap.Request, error) {
	if m.GetExpiryCandidatesFunc != nil {
		return m.GetExpiryCandidatesFunc(now, limit)
	}
	return nil, nil
}

func (m *MockStore) SetPoolHTLC(_ context.Context, id, contractID, txRef string, poolTimelock time.Time) (bool, error) {
	if m.SetPoolHTLCFunc != nil {
		return m.SetPoolHTLCFunc(id, contractID, txRef, poolTimelock)
	}
	return true, nil
}

func (m *MockStore) SetPoolClaimed(_ context.Context, id, txRef string, at time.Time) error {
	if m.SetPoolClaimedFunc != nil {
		return m.SetPoolClaimedFunc(id, txRef, at)
	}
	return nil
}

func (m *MockStore) RecordAttemptError(_ context.Context, id, message string) error {
	if m.RecordAttemptErrorFunc != nil {
		return m.RecordAttemptErrorFunc(id, message)
	}
	return nil
}

func (m *MockStore) InsertOrphanedHTLC(_ context.Context, orphan *swap.OrphanedHTLC) error {
	if m.InsertOrphanedHTLCFunc != nil {
		return m.InsertOrphanedHTLCFunc(orphan)
	}
	return nil
}

func (m *MockStore) GetUnresolvedOrphans(_ context.Context, now time.Time, limit int) ([]*swap.OrphanedHTLC, error) {
	if m.GetUnresolvedOrphansFunc != nil {
		return m.GetUnresolvedOrphansFunc(now, limit)
	}
	return nil, nil
}

func (m *MockStore) ResolveOrphanedHTLC(_ context.Context, id int64, txRef string, at time.Time) error {
	if m.ResolveOrphanedHTLCFunc != nil {
		return m.ResolveOrphanedHTLCFunc(id, txRef, at)
	}
	return nil
}

func (m *MockStore) GetLiquidity(_ context.Context, chain, token string) (*swap.Liquidity, error) {
	if m.GetLiquidityFunc != nil {
		return m.GetLiquidityFunc(chain, token)
	}
	return nil, nil
}

func (m *MockStore) ReserveLiquidity(_ context.Context, chain, token, amount string) (bool, error) {
	if m.ReserveLiquidityFunc != nil {
		return m.ReserveLiquidityFunc(chain, token, amount)
	}
	return true, nil
}

func (m *MockStore) ReleaseLiquidity(_ context.Context, chain, token, amount string) error {
	if m.ReleaseLiquidityFunc != nil {
		return m.ReleaseLiquidityFunc(chain, token, amount)
	}
	return nil
}

func (m *MockStore) CommitLiquidity(_ context.Context, chain, token, amount string) error {
	if m.CommitLiquidityFunc != nil {
		return m.CommitLiquidityFunc(chain, token, amount)
	}
	return nil
}

func (m *MockStore) CreditLiquidity(_ context.Context, chain, token, amount string) error {
	if m.CreditLiquidityFunc != nil {
		return m.CreditLiquidityFunc(chain, token, amount)
	}
	return nil
}

// MockLifecycle implements Lifecycle with configurable function fields.
type MockLifecycle struct {
	RecordUserClaimFunc func(id, txRef string, at time.Time) error
	ExpireFunc          func(id string) error
}

func (m *MockLifecycle) RecordUserClaim(_ context.Context, id, txRef string, at time.Time) error {
	if m.RecordUserClaimFunc != nil {
		return m.RecordUserClaimFunc(id, txRef, at)
	}
	return nil
}

func (m *MockLifecycle) Expire(_ context.Context, id string) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(id)
	}
	return nil
}

// MockAdapter implements htlc.Adapter with configurable function fields.
type MockAdapter struct {
	NameValue            string
	ChainIDValue         int64
	ApproveFunc          func(token, amount string) (string, error)
	FundFunc             func(params htlc.FundParams) (string, string, error)
	GetContractStateFunc func(contractID string) (*htlc.ContractState, error)
	ClaimFunc            func(contractID, preimage string) (string, error)
	RefundFunc           func(contractID string) (string, error)
}

func (m *MockAdapter) Name() string {
	return m.NameValue
}

func (m *MockAdapter) ChainID() int64 {
	return m.ChainIDValue
}

func (m *MockAdapter) Approve(_ context.Context, token, amount string) (string, error) {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(token, amount)
	}
	return "", nil
}

func (m *MockAdapter) Fund(_ context.Context, params htlc.FundParams) (string, string, error) {
	if m.FundFunc != nil {
		return m.FundFunc(params)
	}
	return "", "", nil
}

func (m *MockAdapter) GetContractState(_ context.Context, contractID string) (*htlc.ContractState, error) {
	if m.GetContractStateFunc != nil {
		return m.GetContractStateFunc(contractID)
	}
	return &htlc.ContractState{ContractID: contractID, State: htlc.StateInvalid}, nil
}

func (m *MockAdapter) Claim(_ context.Context, contractID, preimage string) (string, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(contractID, preimage)
	}
	return "", nil
}

func (m *MockAdapter) Refund(_ context.Context, contractID string) (string, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(contractID)
	}
	return "", nil
}
