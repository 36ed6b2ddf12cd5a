package service

import (
	"context"

	"github.com/swapsage/resolver/pkg/coordinator"
	"github.com/swapsage/resolver/pkg/relay"
	"github.com/swapsage/resolver/pkg/swap"
)

// MockLifecycle implements Lifecycle with configurable function fields.
type MockLifecycle struct {
	CreateSwapFunc          func(params coordinator.CreateParams) (*swap.Request, error)
	GetSwapFunc             func(id string) (*swap.Request, error)
	ListSwapsByUserFunc     func(userAddress string, limit int) ([]*swap.Request, error)
	RecordSourceFundingFunc func(id, contractID, txRef string) (*swap.Request, error)
	CancelFunc              func(id string) (*swap.Request, error)
}

func (m *MockLifecycle) CreateSwap(_ context.Context, params coordinator.CreateParams) (*swap.Request, error) {
	if m.CreateSwapFunc != nil {
		return m.CreateSwapFunc(params)
	}
	return nil, nil
}

func (m *MockLifecycle) GetSwap(_ context.Context, id string) (*swap.Request, error) {
	if m.GetSwapFunc != nil {
		return m.GetSwapFunc(id)
	}
	return nil, nil
}

func (m *MockLifecycle) ListSwapsByUser(_ context.Context, userAddress string, limit int) ([]*swap.Request, error) {
	if m.ListSwapsByUserFunc != nil {
		return m.ListSwapsByUserFunc(userAddress, limit)
	}
	return nil, nil
}

func (m *MockLifecycle) RecordSourceFunding(_ context.Context, id, contractID, txRef string) (*swap.Request, error) {
	if m.RecordSourceFundingFunc != nil {
		return m.RecordSourceFundingFunc(id, contractID, txRef)
	}
	return nil, nil
}

func (m *MockLifecycle) Cancel(_ context.Context, id string) (*swap.Request, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(id)
	}
	return nil, nil
}

// MockClaimRelay implements ClaimRelay with configurable function fields.
type MockClaimRelay struct {
	PrepareClaimFunc       func(swapID string) (*relay.Ticket, error)
	SubmitGaslessClaimFunc func(params relay.SubmitParams) (string, error)
}

func (m *MockClaimRelay) PrepareClaim(_ context.Context, swapID string) (*relay.Ticket, error) {
	if m.PrepareClaimFunc != nil {
		return m.PrepareClaimFunc(swapID)
	}
	return nil, nil
}

func (m *MockClaimRelay) SubmitGaslessClaim(_ context.Context, params relay.SubmitParams) (string, error) {
	if m.SubmitGaslessClaimFunc != nil {
		return m.SubmitGaslessClaimFunc(params)
	}
	return "", nil
}
