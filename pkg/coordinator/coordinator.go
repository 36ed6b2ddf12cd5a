// Package coordinator drives the swap lifecycle: creation, funding
// verification, claims, cancellation and expiry.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapsage/resolver/internal/metrics"
	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
	"github.com/swapsage/resolver/pkg/swapstore"
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	CreateSwapRequest(ctx context.Context, req *swap.Request) error
	GetSwapRequest(ctx context.Context, id string) (*swap.Request, error)
	GetSwapsByUser(ctx context.Context, userAddress string, limit int) ([]*swap.Request, error)
	SetUserHTLC(ctx context.Context, id, contractID, txRef string) (bool, error)
	SetUserClaimed(ctx context.Context, id, txRef string, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to swap.Status) (bool, error)
}

// CreateParams are the inputs for a new swap request.
type CreateParams struct {
	UserAddress        string
	BeneficiaryAddress string
	SourceChain        string
	SourceToken        string
	DestinationChain   string
	DestinationToken   string
	SourceAmount       string
	HashLock           string
	// Timelock is optional; the configured default is applied when zero.
	Timelock time.Time
}

// Coordinator owns all swap state transitions. Every transition is a
// conditional store update; a missed update is re-read to distinguish an
// idempotent repeat from a real conflict.
type Coordinator struct {
	store       Store
	adapters    map[string]htlc.Adapter
	swapCfg     *config.SwapConfig
	poolAddress string
	logger      *zap.Logger
}

// New creates a swap coordinator.
func New(store Store, adapters map[string]htlc.Adapter, swapCfg *config.SwapConfig, poolAddress string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		adapters:    adapters,
		swapCfg:     swapCfg,
		poolAddress: poolAddress,
		logger:      logger,
	}
}

// CreateSwap validates the request against the supported-pair allow-list,
// quotes the destination amount at the pair's rate and persists the swap in
// pending state.
func (c *Coordinator) CreateSwap(ctx context.Context, params CreateParams) (*swap.Request, error) {
	if !common.IsHexAddress(params.UserAddress) {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("malformed user address %q", params.UserAddress))
	}
	if !common.IsHexAddress(params.BeneficiaryAddress) {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("malformed beneficiary address %q", params.BeneficiaryAddress))
	}
	if _, err := htlc.ParseHash(params.HashLock); err != nil {
		return nil, apperrors.ValidationError(err, "malformed hash lock")
	}
	if _, ok := c.adapters[params.SourceChain]; !ok {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("unsupported source chain %q", params.SourceChain))
	}
	if _, ok := c.adapters[params.DestinationChain]; !ok {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("unsupported destination chain %q", params.DestinationChain))
	}

	pair := c.findPair(params.SourceChain, params.SourceToken, params.DestinationChain, params.DestinationToken)
	if pair == nil {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("unsupported pair %s/%s -> %s/%s",
			params.SourceChain, params.SourceToken, params.DestinationChain, params.DestinationToken))
	}

	amount, err := decimal.NewFromString(params.SourceAmount)
	if err != nil {
		return nil, apperrors.AmountError(err, fmt.Sprintf("malformed amount %q", params.SourceAmount))
	}
	if amount.Sign() <= 0 || !amount.Equal(amount.Floor()) {
		return nil, apperrors.AmountError(nil, "amount must be a positive integer of minor units")
	}
	if err := c.checkAmountBounds(amount, pair); err != nil {
		return nil, err
	}

	expected, err := quote(amount, pair.Rate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	timelock := params.Timelock
	if timelock.IsZero() {
		timelock = now.Add(c.swapCfg.DefaultTimelock)
	}
	if remaining := timelock.Sub(now); remaining < c.swapCfg.MinTimelock || remaining > c.swapCfg.MaxTimelock {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("timelock must be between %s and %s from now",
			c.swapCfg.MinTimelock, c.swapCfg.MaxTimelock))
	}

	req := &swap.Request{
		ID:                 uuid.New().String(),
		UserAddress:        params.UserAddress,
		BeneficiaryAddress: params.BeneficiaryAddress,
		SourceChain:        params.SourceChain,
		DestinationChain:   params.DestinationChain,
		SourceToken:        params.SourceToken,
		DestinationToken:   params.DestinationToken,
		SourceAmount:       amount.String(),
		ExpectedAmount:     expected.String(),
		HashLock:           strings.ToLower(params.HashLock),
		Timelock:           timelock.UTC(),
		Status:             swap.StatusPending,
	}

	if err := c.store.CreateSwapRequest(ctx, req); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	metrics.SwapsTotal.WithLabelValues(string(swap.StatusPending)).Inc()
	c.logger.Info("Swap created",
		zap.String("swap_id", req.ID),
		zap.String("source_chain", req.SourceChain),
		zap.String("destination_chain", req.DestinationChain),
		zap.String("source_amount", req.SourceAmount),
		zap.String("expected_amount", req.ExpectedAmount),
		zap.Time("timelock", req.Timelock))

	return req, nil
}

// GetSwap returns one swap by ID.
func (c *Coordinator) GetSwap(ctx context.Context, id string) (*swap.Request, error) {
	req, err := c.store.GetSwapRequest(ctx, id)
	if err != nil {
		if errors.Is(err, swapstore.ErrSwapNotFound) {
			return nil, apperrors.NotFoundError(err, fmt.Sprintf("swap %s not found", id))
		}
		return nil, apperrors.GeneralError(err)
	}
	return req, nil
}

// ListSwapsByUser returns the user's swaps, newest first.
func (c *Coordinator) ListSwapsByUser(ctx context.Context, userAddress string, limit int) ([]*swap.Request, error) {
	if !common.IsHexAddress(userAddress) {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("malformed user address %q", userAddress))
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	swaps, err := c.store.GetSwapsByUser(ctx, userAddress, limit)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return swaps, nil
}

// RecordSourceFunding verifies the user's source HTLC on-chain and records
// it against the swap. The contract must be active, locked with the swap's
// hash lock toward the pool, and carry the agreed amount and timelock.
func (c *Coordinator) RecordSourceFunding(ctx context.Context, id, contractID, txRef string) (*swap.Request, error) {
	req, err := c.GetSwap(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperrors.WrongStateError(nil, fmt.Sprintf("swap %s is %s", id, req.Status))
	}
	if req.UserHTLCContract != "" {
		if strings.EqualFold(req.UserHTLCContract, contractID) {
			return req, nil
		}
		return nil, apperrors.ConflictError(nil,
			fmt.Sprintf("swap %s already funded by contract %s", id, req.UserHTLCContract))
	}

	adapter, err := c.adapter(req.SourceChain)
	if err != nil {
		return nil, err
	}
	state, err := adapter.GetContractState(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := c.verifySourceContract(req, state); err != nil {
		return nil, err
	}

	ok, err := c.store.SetUserHTLC(ctx, id, strings.ToLower(contractID), txRef)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if !ok {
		// Raced with another writer; re-read to decide.
		req, err = c.GetSwap(ctx, id)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(req.UserHTLCContract, contractID) {
			return req, nil
		}
		return nil, apperrors.ConflictError(nil,
			fmt.Sprintf("swap %s concurrently funded by contract %s", id, req.UserHTLCContract))
	}

	c.logger.Info("Source funding recorded",
		zap.String("swap_id", id),
		zap.String("contract_id", contractID),
		zap.String("chain", req.SourceChain))

	return c.GetSwap(ctx, id)
}

// RecordUserClaim transitions the swap to user_claimed. Safe to repeat: a
// second call with the swap already claimed reports success.
func (c *Coordinator) RecordUserClaim(ctx context.Context, id, txRef string, at time.Time) error {
	ok, err := c.store.SetUserClaimed(ctx, id, txRef, at)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if ok {
		metrics.SwapsTotal.WithLabelValues(string(swap.StatusUserClaimed)).Inc()
		c.logger.Info("User claim recorded", zap.String("swap_id", id), zap.String("tx_hash", txRef))
		return nil
	}

	req, err := c.GetSwap(ctx, id)
	if err != nil {
		return err
	}
	if req.Status == swap.StatusUserClaimed {
		return nil
	}
	return apperrors.WrongStateError(nil,
		fmt.Sprintf("swap %s is %s, cannot record user claim", id, req.Status))
}

// Cancel aborts a swap the user has not yet funded. Once the source HTLC is
// funded only expiry and refund can release the locked tokens.
func (c *Coordinator) Cancel(ctx context.Context, id string) (*swap.Request, error) {
	req, err := c.GetSwap(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == swap.StatusCancelled {
		return req, nil
	}
	if !req.Cancellable() {
		if req.UserHTLCContract != "" && req.Status == swap.StatusPending {
			return nil, apperrors.WrongStateError(nil,
				fmt.Sprintf("swap %s has a funded source HTLC; wait for expiry and refund", id))
		}
		return nil, apperrors.WrongStateError(nil, fmt.Sprintf("swap %s is %s, cannot cancel", id, req.Status))
	}

	ok, err := c.store.UpdateStatus(ctx, id, swap.StatusPending, swap.StatusCancelled)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if !ok {
		req, err = c.GetSwap(ctx, id)
		if err != nil {
			return nil, err
		}
		if req.Status == swap.StatusCancelled {
			return req, nil
		}
		return nil, apperrors.ConflictError(nil, fmt.Sprintf("swap %s moved to %s during cancel", id, req.Status))
	}

	metrics.SwapsTotal.WithLabelValues(string(swap.StatusCancelled)).Inc()
	c.logger.Info("Swap cancelled", zap.String("swap_id", id))
	return c.GetSwap(ctx, id)
}

// Expire marks a swap whose timelock has passed. Callable any number of
// times; a swap already in a terminal state is a no-op.
func (c *Coordinator) Expire(ctx context.Context, id string) error {
	req, err := c.GetSwap(ctx, id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		// The sweep may race a claim or cancel; that is not a failure.
		return nil
	}
	if time.Now().Before(req.Timelock) {
		return apperrors.WrongStateError(nil,
			fmt.Sprintf("swap %s timelock has not passed, expires %s", id, req.Timelock))
	}

	ok, err := c.store.UpdateStatus(ctx, id, req.Status, swap.StatusExpired)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if !ok {
		req, err = c.GetSwap(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == swap.StatusExpired {
			return nil
		}
		return apperrors.ConflictError(nil, fmt.Sprintf("swap %s moved to %s during expiry", id, req.Status))
	}

	metrics.SwapsTotal.WithLabelValues(string(swap.StatusExpired)).Inc()
	metrics.ExpiredSwaps.Inc()
	c.logger.Info("Swap expired", zap.String("swap_id", id))
	return nil
}

func (c *Coordinator) adapter(chain string) (htlc.Adapter, error) {
	a, ok := c.adapters[chain]
	if !ok {
		return nil, apperrors.ValidationError(nil, fmt.Sprintf("unsupported chain %q", chain))
	}
	return a, nil
}

func (c *Coordinator) findPair(srcChain, srcToken, dstChain, dstToken string) *config.PairConfig {
	for i := range c.swapCfg.Pairs {
		p := &c.swapCfg.Pairs[i]
		if p.SourceChain == srcChain &&
			strings.EqualFold(p.SourceToken, srcToken) &&
			p.DestinationChain == dstChain &&
			strings.EqualFold(p.DestinationToken, dstToken) {
			return p
		}
	}
	return nil
}

func (c *Coordinator) checkAmountBounds(amount decimal.Decimal, pair *config.PairConfig) error {
	if pair.MinAmount != "" {
		minAmount, err := decimal.NewFromString(pair.MinAmount)
		if err != nil {
			return apperrors.GeneralError(fmt.Errorf("malformed pair min_amount %q: %w", pair.MinAmount, err))
		}
		if amount.LessThan(minAmount) {
			return apperrors.AmountError(nil, fmt.Sprintf("amount %s below minimum %s", amount, minAmount))
		}
	}
	if pair.MaxAmount != "" {
		maxAmount, err := decimal.NewFromString(pair.MaxAmount)
		if err != nil {
			return apperrors.GeneralError(fmt.Errorf("malformed pair max_amount %q: %w", pair.MaxAmount, err))
		}
		if amount.GreaterThan(maxAmount) {
			return apperrors.AmountError(nil, fmt.Sprintf("amount %s above maximum %s", amount, maxAmount))
		}
	}
	return nil
}

func (c *Coordinator) verifySourceContract(req *swap.Request, state *htlc.ContractState) error {
	switch state.State {
	case htlc.StateInvalid:
		return apperrors.NotFoundError(nil,
			fmt.Sprintf("no HTLC %s on %s", state.ContractID, req.SourceChain))
	case htlc.StateClaimed:
		return apperrors.AlreadyClaimedError(nil, fmt.Sprintf("HTLC %s already claimed", state.ContractID))
	case htlc.StateRefunded:
		return apperrors.WrongStateError(nil, fmt.Sprintf("HTLC %s already refunded", state.ContractID))
	}
	if !strings.EqualFold(state.HashLock, req.HashLock) {
		return apperrors.HashMismatchError(nil, "source HTLC hash lock does not match the swap")
	}
	if !strings.EqualFold(state.Originator, req.UserAddress) {
		return apperrors.ValidationError(nil, "source HTLC was not funded by the swap's user")
	}
	if !strings.EqualFold(state.Beneficiary, c.poolAddress) {
		return apperrors.ValidationError(nil, "source HTLC beneficiary is not the pool")
	}
	if !strings.EqualFold(state.Token, req.SourceToken) {
		return apperrors.ValidationError(nil, "source HTLC token does not match the swap")
	}
	if state.Amount != req.SourceAmount {
		return apperrors.AmountError(nil,
			fmt.Sprintf("source HTLC amount %s does not match agreed %s", state.Amount, req.SourceAmount))
	}
	if state.Timelock.Before(req.Timelock) {
		return apperrors.ValidationError(nil, "source HTLC timelock is shorter than the swap's")
	}
	return nil
}

func quote(amount decimal.Decimal, rate string) (decimal.Decimal, error) {
	rateDec, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Zero, apperrors.GeneralError(fmt.Errorf("malformed pair rate %q: %w", rate, err))
	}
	expected := amount.Mul(rateDec).Floor()
	if expected.Sign() <= 0 {
		return decimal.Zero, apperrors.AmountError(nil, "quoted destination amount rounds to zero")
	}
	return expected, nil
}
