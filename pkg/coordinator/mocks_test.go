package coordinator

import (
	"context"
	"time"

	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

// MockStore implements Store with configurable function fields.
type MockStore struct {
	CreateSwapRequestFunc func(req *swap.Request) error
	GetSwapRequestFunc    func(id string) (*swap.Request, error)
	GetSwapsByUserFunc    func(userAddress string, limit int) ([]*swap.Request, error)
	SetUserHTLCFunc       func(id, contractID, txRef string) (bool, error)
	SetUserClaimedFunc    func(id, txRef string, at time.Time) (bool, error)
	UpdateStatusFunc      func(id string, from, to swap.Status) (bool, error)
}

func (m *MockStore) CreateSwapRequest(_ context.Context, req *swap.Request) error {
	if m.CreateSwapRequestFunc != nil {
		return m.CreateSwapRequestFunc(req)
	}
	return nil
}

func (m *MockStore) GetSwapRequest(_ context.Context, id string) (*swap.Request, error) {
	if m.GetSwapRequestFunc != nil {
		return m.GetSwapRequestFunc(id)
	}
	return nil, nil
}

func (m *MockStore) GetSwapsByUser(_ context.Context, userAddress string, limit int) ([]*swap.Request, error) {
	if m.GetSwapsByUserFunc != nil {
		return m.GetSwapsByUserFunc(userAddress, limit)
	}
	return nil, nil
}

func (m *MockStore) SetUserHTLC(_ context.Context, id, contractID, txRef string) (bool, error) {
	if m.SetUserHTLCFunc != nil {
		return m.SetUserHTLCFunc(id, contractID, txRef)
	}
	return true, nil
}

func (m *MockStore) SetUserClaimed(_ context.Context, id, txRef string, at time.Time) (bool, error) {
	if m.SetUserClaimedFunc != nil {
		return m.SetUserClaimedFunc(id, txRef, at)
	}
	return true, nil
}

func (m *MockStore) UpdateStatus(_ context.Context, id string, from, to swap.Status) (bool, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(id, from, to)
	}
	return true, nil
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
