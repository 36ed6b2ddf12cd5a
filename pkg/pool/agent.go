// Package pool runs the liquidity pool's fulfillment agent: it funds
// destination HTLCs for funded swaps, settles source sides once preimages
// are revealed, and sweeps expired swaps.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapsage/resolver/internal/metrics"
	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

const fundRetries = 3

// Store is the persistence surface the agent needs.
type Store interface {
	GetFulfillmentCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error)
	GetSettlementCandidates(ctx context.Context, limit int) ([]*swap.Request, error)
	GetExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error)
	SetPoolHTLC(ctx context.Context, id, contractID, txRef string, poolTimelock time.Time) (bool, error)
	SetPoolClaimed(ctx context.Context, id, txRef string, at time.Time) error
	RecordAttemptError(ctx context.Context, id, message string) error

	InsertOrphanedHTLC(ctx context.Context, orphan *swap.OrphanedHTLC) error
	GetUnresolvedOrphans(ctx context.Context, now time.Time, limit int) ([]*swap.OrphanedHTLC, error)
	ResolveOrphanedHTLC(ctx context.Context, id int64, txRef string, at time.Time) error

	GetLiquidity(ctx context.Context, chain, token string) (*swap.Liquidity, error)
	ReserveLiquidity(ctx context.Context, chain, token, amount string) (bool, error)
	ReleaseLiquidity(ctx context.Context, chain, token, amount string) error
	CommitLiquidity(ctx context.Context, chain, token, amount string) error
	CreditLiquidity(ctx context.Context, chain, token, amount string) error
}

// Lifecycle is the slice of the coordinator the agent drives.
type Lifecycle interface {
	RecordUserClaim(ctx context.Context, id, txRef string, at time.Time) error
	Expire(ctx context.Context, id string) error
}

// Agent polls for work on three independent loops: fulfillment, settlement
// and expiry. Each candidate is processed in isolation so one failing swap
// never stalls the batch.
type Agent struct {
	cfg       *config.PoolConfig
	store     Store
	lifecycle Lifecycle
	adapters  map[string]htlc.Adapter
	logger    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAgent creates a fulfillment agent.
func NewAgent(cfg *config.PoolConfig, store Store, lifecycle Lifecycle, adapters map[string]htlc.Adapter, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:       cfg,
		store:     store,
		lifecycle: lifecycle,
		adapters:  adapters,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling loops.
func (a *Agent) Start(ctx context.Context) {
	a.logger.Info("Starting pool fulfillment agent")

	a.wg.Add(3)
	go a.loop(ctx, a.cfg.PollInterval, a.runFulfillment)
	go a.loop(ctx, a.cfg.SettlePoll, a.runSettlement)
	go a.loop(ctx, a.cfg.ExpirySweep, a.runExpirySweep)

	a.logger.Info("Pool fulfillment agent started")
}

// Stop stops the polling loops and waits for in-flight cycles.
func (a *Agent) Stop() {
	a.logger.Info("Stopping pool fulfillment agent")
	close(a.stopCh)
	a.wg.Wait()
	a.logger.Info("Pool fulfillment agent stopped")
}

func (a *Agent) loop(ctx context.Context, interval time.Duration, cycle func(context.Context)) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// runFulfillment funds the destination HTLC for each actionable swap.
func (a *Agent) runFulfillment(ctx context.Context) {
	candidates, err := a.store.GetFulfillmentCandidates(ctx, time.Now().UTC(), a.cfg.BatchSize)
	if err != nil {
		a.logger.Error("Failed to list fulfillment candidates", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("pool_fulfillment", "store").Inc()
		return
	}

	for _, req := range candidates {
		if err := a.fulfill(ctx, req); err != nil {
			a.logger.Warn("Fulfillment attempt failed",
				zap.String("swap_id", req.ID),
				zap.Error(err))
		}
	}
}

// fulfill reserves destination liquidity, funds the destination HTLC with a
// timelock strictly shorter than the source's, and records the result. The
// reservation is released when funding fails.
func (a *Agent) fulfill(ctx context.Context, req *swap.Request) error {
	adapter, ok := a.adapters[req.DestinationChain]
	if !ok {
		return a.recordFailure(ctx, req, "fulfillment",
			apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.DestinationChain)))
	}

	now := time.Now().UTC()
	poolTimelock, err := destinationTimelock(now, req.Timelock, a.cfg.MinMargin)
	if err != nil {
		return a.recordFailure(ctx, req, "fulfillment", err)
	}

	// Re-check the source side: it must still hold the locked funds.
	sourceAdapter, ok := a.adapters[req.SourceChain]
	if !ok {
		return a.recordFailure(ctx, req, "fulfillment",
			apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.SourceChain)))
	}
	sourceState, err := sourceAdapter.GetContractState(ctx, req.UserHTLCContract)
	if err != nil {
		return a.recordFailure(ctx, req, "fulfillment", err)
	}
	if sourceState.State != htlc.StateActive {
		return a.recordFailure(ctx, req, "fulfillment",
			apperrors.WrongStateError(nil, fmt.Sprintf("source HTLC is %s, not active", sourceState.State)))
	}

	// Allowance is an explicit pre-step; Fund refuses to transact without it.
	if _, err := adapter.Approve(ctx, req.DestinationToken, req.ExpectedAmount); err != nil {
		return a.recordFailure(ctx, req, "fulfillment", err)
	}

	reserved, err := a.store.ReserveLiquidity(ctx, req.DestinationChain, req.DestinationToken, req.ExpectedAmount)
	if err != nil {
		return a.recordFailure(ctx, req, "fulfillment", apperrors.GeneralError(err))
	}
	if !reserved {
		return a.recordFailure(ctx, req, "fulfillment",
			apperrors.InsufficientLiquidityError(nil,
				fmt.Sprintf("cannot reserve %s of %s on %s", req.ExpectedAmount, req.DestinationToken, req.DestinationChain)))
	}
	a.updateLiquidityGauge(ctx, req.DestinationChain, req.DestinationToken)

	var contractID, txRef string
	err = htlc.Retry(ctx, fundRetries, time.Second, func() error {
		var fundErr error
		contractID, txRef, fundErr = adapter.Fund(ctx, htlc.FundParams{
			Token:       req.DestinationToken,
			Beneficiary: req.BeneficiaryAddress,
			HashLock:    req.HashLock,
			Amount:      req.ExpectedAmount,
			Timelock:    poolTimelock,
		})
		return fundErr
	})
	if err != nil {
		if relErr := a.store.ReleaseLiquidity(ctx, req.DestinationChain, req.DestinationToken, req.ExpectedAmount); relErr != nil {
			a.logger.Error("Failed to release reservation after funding failure",
				zap.String("swap_id", req.ID), zap.Error(relErr))
		}
		a.updateLiquidityGauge(ctx, req.DestinationChain, req.DestinationToken)
		metrics.TransactionsSent.WithLabelValues(req.DestinationChain, "fund", "failed").Inc()
		return a.recordFailure(ctx, req, "fulfillment", err)
	}
	metrics.TransactionsSent.WithLabelValues(req.DestinationChain, "fund", "success").Inc()

	ok, err = a.store.SetPoolHTLC(ctx, req.ID, contractID, txRef, poolTimelock)
	if err != nil {
		return a.recordFailure(ctx, req, "fulfillment", apperrors.GeneralError(err))
	}
	if !ok {
		// Another agent fulfilled concurrently. Our duplicate stays locked
		// on-chain with its reservation held; the sweep refunds it after its
		// timelock and releases the reservation then.
		if insErr := a.store.InsertOrphanedHTLC(ctx, &swap.OrphanedHTLC{
			SwapID:       req.ID,
			Chain:        req.DestinationChain,
			TokenAddress: req.DestinationToken,
			ContractID:   contractID,
			Amount:       req.ExpectedAmount,
			Timelock:     poolTimelock,
		}); insErr != nil {
			return a.recordFailure(ctx, req, "fulfillment", apperrors.GeneralError(insErr))
		}
		a.logger.Warn("Swap fulfilled concurrently, duplicate destination HTLC queued for refund",
			zap.String("swap_id", req.ID),
			zap.String("contract_id", contractID))
		return nil
	}

	metrics.SwapsTotal.WithLabelValues(string(swap.StatusPoolFulfilled)).Inc()
	metrics.FulfillmentDuration.WithLabelValues(req.DestinationChain).Observe(time.Since(req.CreatedAt).Seconds())
	a.logger.Info("Destination HTLC funded",
		zap.String("swap_id", req.ID),
		zap.String("contract_id", contractID),
		zap.String("tx_hash", txRef),
		zap.Time("pool_timelock", poolTimelock))
	return nil
}

// runSettlement watches fulfilled swaps for the user's destination claim;
// the revealed preimage then unlocks the pool's source-side claim.
func (a *Agent) runSettlement(ctx context.Context) {
	candidates, err := a.store.GetSettlementCandidates(ctx, a.cfg.BatchSize)
	if err != nil {
		a.logger.Error("Failed to list settlement candidates", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("pool_settlement", "store").Inc()
		return
	}

	for _, req := range candidates {
		if err := a.settle(ctx, req); err != nil {
			a.logger.Warn("Settlement attempt failed",
				zap.String("swap_id", req.ID),
				zap.Error(err))
		}
	}
}

func (a *Agent) settle(ctx context.Context, req *swap.Request) error {
	destAdapter, ok := a.adapters[req.DestinationChain]
	if !ok {
		return apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.DestinationChain))
	}

	destState, err := destAdapter.GetContractState(ctx, req.PoolHTLCContract)
	if err != nil {
		return a.recordFailure(ctx, req, "settlement", err)
	}
	if destState.State != htlc.StateClaimed {
		return nil
	}

	// The claim was observed from contract state, which carries the revealed
	// preimage but not the claiming transaction's hash.
	if err := a.lifecycle.RecordUserClaim(ctx, req.ID, "", time.Now().UTC()); err != nil {
		return a.recordFailure(ctx, req, "settlement", err)
	}

	sourceAdapter, ok := a.adapters[req.SourceChain]
	if !ok {
		return apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.SourceChain))
	}

	var claimTx string
	err = htlc.Retry(ctx, fundRetries, time.Second, func() error {
		var claimErr error
		claimTx, claimErr = sourceAdapter.Claim(ctx, req.UserHTLCContract, destState.Preimage)
		return claimErr
	})
	switch {
	case err == nil:
		metrics.TransactionsSent.WithLabelValues(req.SourceChain, "claim", "success").Inc()
	case apperrors.Is(err, apperrors.CategoryAlreadyClaimed):
		// A previous attempt landed; nothing was sent this cycle, so the
		// counters stay put. Fall through and record the outcome.
		claimTx = ""
	default:
		metrics.TransactionsSent.WithLabelValues(req.SourceChain, "claim", "failed").Inc()
		return a.recordFailure(ctx, req, "settlement", err)
	}

	if err := a.store.SetPoolClaimed(ctx, req.ID, claimTx, time.Now().UTC()); err != nil {
		return a.recordFailure(ctx, req, "settlement", apperrors.GeneralError(err))
	}
	if err := a.store.CommitLiquidity(ctx, req.DestinationChain, req.DestinationToken, req.ExpectedAmount); err != nil {
		return a.recordFailure(ctx, req, "settlement", apperrors.GeneralError(err))
	}
	if err := a.store.CreditLiquidity(ctx, req.SourceChain, req.SourceToken, req.SourceAmount); err != nil {
		return a.recordFailure(ctx, req, "settlement", apperrors.GeneralError(err))
	}
	a.updateLiquidityGauge(ctx, req.DestinationChain, req.DestinationToken)
	a.updateLiquidityGauge(ctx, req.SourceChain, req.SourceToken)

	a.logger.Info("Swap settled",
		zap.String("swap_id", req.ID),
		zap.String("source_claim_tx", claimTx))
	return nil
}

// runExpirySweep expires swaps whose timelock passed, refunds any
// destination HTLC the pool still has locked, and recovers duplicates left
// behind by lost fulfillment races.
func (a *Agent) runExpirySweep(ctx context.Context) {
	candidates, err := a.store.GetExpiryCandidates(ctx, time.Now().UTC(), a.cfg.BatchSize)
	if err != nil {
		a.logger.Error("Failed to list expiry candidates", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("pool_expiry", "store").Inc()
		return
	}

	for _, req := range candidates {
		if err := a.expire(ctx, req); err != nil {
			a.logger.Warn("Expiry attempt failed",
				zap.String("swap_id", req.ID),
				zap.Error(err))
		}
	}

	a.sweepOrphans(ctx)
}

func (a *Agent) sweepOrphans(ctx context.Context) {
	orphans, err := a.store.GetUnresolvedOrphans(ctx, time.Now().UTC(), a.cfg.BatchSize)
	if err != nil {
		a.logger.Error("Failed to list orphaned HTLCs", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("pool_expiry", "store").Inc()
		return
	}

	for _, orphan := range orphans {
		if err := a.recoverOrphan(ctx, orphan); err != nil {
			a.logger.Warn("Orphan recovery attempt failed",
				zap.String("swap_id", orphan.SwapID),
				zap.String("contract_id", orphan.ContractID),
				zap.Error(err))
		}
	}
}

// recoverOrphan settles the books for a duplicate destination HTLC funded by
// a lost fulfillment race: a refund releases its reservation back to the
// pool, a beneficiary claim commits it.
func (a *Agent) recoverOrphan(ctx context.Context, orphan *swap.OrphanedHTLC) error {
	adapter, ok := a.adapters[orphan.Chain]
	if !ok {
		return apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", orphan.Chain))
	}
	state, err := adapter.GetContractState(ctx, orphan.ContractID)
	if err != nil {
		return err
	}

	switch state.State {
	case htlc.StateActive:
		refundTx, err := adapter.Refund(ctx, orphan.ContractID)
		if err != nil {
			metrics.TransactionsSent.WithLabelValues(orphan.Chain, "refund", "failed").Inc()
			return err
		}
		metrics.TransactionsSent.WithLabelValues(orphan.Chain, "refund", "success").Inc()
		if err := a.store.ReleaseLiquidity(ctx, orphan.Chain, orphan.TokenAddress, orphan.Amount); err != nil {
			return apperrors.GeneralError(err)
		}
		if err := a.store.ResolveOrphanedHTLC(ctx, orphan.ID, refundTx, time.Now().UTC()); err != nil {
			return apperrors.GeneralError(err)
		}
		a.logger.Info("Duplicate destination HTLC refunded",
			zap.String("swap_id", orphan.SwapID),
			zap.String("contract_id", orphan.ContractID),
			zap.String("tx_hash", refundTx))
	case htlc.StateClaimed:
		// The beneficiary withdrew the duplicate too; those tokens are gone.
		if err := a.store.CommitLiquidity(ctx, orphan.Chain, orphan.TokenAddress, orphan.Amount); err != nil {
			return apperrors.GeneralError(err)
		}
		if err := a.store.ResolveOrphanedHTLC(ctx, orphan.ID, "", time.Now().UTC()); err != nil {
			return apperrors.GeneralError(err)
		}
		a.logger.Warn("Duplicate destination HTLC was claimed, reservation committed",
			zap.String("swap_id", orphan.SwapID),
			zap.String("contract_id", orphan.ContractID))
	case htlc.StateRefunded:
		// Refunded in an earlier cycle that died before resolving.
		if err := a.store.ReleaseLiquidity(ctx, orphan.Chain, orphan.TokenAddress, orphan.Amount); err != nil {
			return apperrors.GeneralError(err)
		}
		if err := a.store.ResolveOrphanedHTLC(ctx, orphan.ID, "", time.Now().UTC()); err != nil {
			return apperrors.GeneralError(err)
		}
	default:
		return apperrors.WrongStateError(nil,
			fmt.Sprintf("orphaned HTLC %s on %s is %s", orphan.ContractID, orphan.Chain, state.State))
	}

	a.updateLiquidityGauge(ctx, orphan.Chain, orphan.TokenAddress)
	return nil
}

func (a *Agent) expire(ctx context.Context, req *swap.Request) error {
	// A claim that raced the sweep wins; settlement picks it up.
	if req.PoolHTLCContract != "" {
		destAdapter, ok := a.adapters[req.DestinationChain]
		if !ok {
			return apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.DestinationChain))
		}
		destState, err := destAdapter.GetContractState(ctx, req.PoolHTLCContract)
		if err != nil {
			return a.recordFailure(ctx, req, "expiry", err)
		}
		if destState.State == htlc.StateClaimed {
			return nil
		}

		if destState.State == htlc.StateActive && req.PoolTimelock != nil && !time.Now().Before(*req.PoolTimelock) {
			refundTx, err := destAdapter.Refund(ctx, req.PoolHTLCContract)
			if err != nil {
				metrics.TransactionsSent.WithLabelValues(req.DestinationChain, "refund", "failed").Inc()
				return a.recordFailure(ctx, req, "expiry", err)
			}
			metrics.TransactionsSent.WithLabelValues(req.DestinationChain, "refund", "success").Inc()
			if err := a.store.ReleaseLiquidity(ctx, req.DestinationChain, req.DestinationToken, req.ExpectedAmount); err != nil {
				return a.recordFailure(ctx, req, "expiry", apperrors.GeneralError(err))
			}
			a.updateLiquidityGauge(ctx, req.DestinationChain, req.DestinationToken)
			a.logger.Info("Destination HTLC refunded",
				zap.String("swap_id", req.ID),
				zap.String("tx_hash", refundTx))
		}
	}

	return a.lifecycle.Expire(ctx, req.ID)
}

func (a *Agent) recordFailure(ctx context.Context, req *swap.Request, component string, err error) error {
	var svcErr *apperrors.ServiceError
	category := "general"
	if errors.As(err, &svcErr) {
		category = svcErr.Category.String()
	}
	metrics.ErrorsTotal.WithLabelValues("pool_"+component, category).Inc()

	if recErr := a.store.RecordAttemptError(ctx, req.ID, err.Error()); recErr != nil {
		a.logger.Error("Failed to record attempt error",
			zap.String("swap_id", req.ID), zap.Error(recErr))
	}
	return err
}

func (a *Agent) updateLiquidityGauge(ctx context.Context, chain, token string) {
	liq, err := a.store.GetLiquidity(ctx, chain, token)
	if err != nil || liq == nil {
		return
	}
	for bucket, value := range map[string]string{
		"available": liq.Available,
		"reserved":  liq.Reserved,
		"total":     liq.Total,
	} {
		if d, err := decimal.NewFromString(value); err == nil {
			metrics.PoolLiquidity.WithLabelValues(chain, token, bucket).Set(d.InexactFloat64())
		}
	}
}

// destinationTimelock halves the remaining source window so the pool always
// has time to claim the source side after the user reveals the preimage.
// The resulting window must clear the configured minimum margin.
func destinationTimelock(now, sourceTimelock time.Time, minMargin time.Duration) (time.Time, error) {
	remaining := sourceTimelock.Sub(now)
	window := remaining / 2
	if window < minMargin {
		return time.Time{}, apperrors.ExpiredError(nil,
			fmt.Sprintf("remaining window %s leaves less than the %s margin", remaining, minMargin))
	}
	return now.Add(window), nil
}
