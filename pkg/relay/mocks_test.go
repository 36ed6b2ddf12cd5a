package relay

import (
	"context"
	"time"

	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

// MockStore implements Store with configurable function fields.
type MockStore struct {
	InsertRelayClaimFunc      func(claim *swap.RelayClaim) error
	CountRelayClaimsSinceFunc func(beneficiary string, since time.Time) (int, error)
}

func (m *MockStore) InsertRelayClaim(_ context.Context, claim *swap.RelayClaim) error {
	if m.InsertRelayClaimFunc != nil {
		return m.InsertRelayClaimFunc(claim)
	}
	return nil
}

func (m *MockStore) CountRelayClaimsSince(_ context.Context, beneficiary string, since time.Time) (int, error) {
	if m.CountRelayClaimsSinceFunc != nil {
		return m.CountRelayClaimsSinceFunc(beneficiary, since)
	}
	return 0, nil
}

// MockLifecycle implements Lifecycle with configurable function fields.
type MockLifecycle struct {
	GetSwapFunc         func(id string) (*swap.Request, error)
	RecordUserClaimFunc func(id, txRef string, at time.Time) error
}

func (m *MockLifecycle) GetSwap(_ context.Context, id string) (*swap.Request, error) {
	if m.GetSwapFunc != nil {
		return m.GetSwapFunc(id)
	}
	return nil, nil
}

func (m *MockLifecycle) RecordUserClaim(_ context.Context, id, txRef string, at time.Time) error {
	if m.RecordUserClaimFunc != nil {
		return m.RecordUserClaimFunc(id, txRef, at)
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
