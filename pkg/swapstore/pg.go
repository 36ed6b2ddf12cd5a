package swapstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/swapsage/resolver/pkg/swap"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the swap store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateSwapRequest(ctx context.Context, req *swap.Request) error {
	dao := toSwapDao(req)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}

	return nil
}

func (s *pgStore) GetSwapRequest(ctx context.Context, id string) (*swap.Request, error) {
	dao := new(SwapDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwapNotFound
		}
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}

	return toSwap(dao), nil
}

func (s *pgStore) GetSwapsByUser(ctx context.Context, userAddress string, limit int) ([]*swap.Request, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_address = ?", userAddress).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps by user: %w", err)
	}
	return toSwaps(daos), nil
}

func (s *pgStore) GetPendingSwaps(ctx context.Context, limit int) ([]*swap.Request, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(swap.StatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending swaps: %w", err)
	}
	return toSwaps(daos), nil
}

func (s *pgStore) GetFulfillmentCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(swap.StatusPending)).
		Where("user_htlc_contract IS NOT NULL").
		Where("pool_htlc_contract IS NULL").
		Where("timelock > ?", now).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list fulfillment candidates: %w", err)
	}
	return toSwaps(daos), nil
}

func (s *pgStore) GetSettlementCandidates(ctx context.Context, limit int) ([]*swap.Request, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(swap.StatusPoolFulfilled)).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement candidates: %w", err)
	}
	return toSwaps(daos), nil
}

func (s *pgStore) GetExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*swap.Request, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status IN (?)", bun.In([]string{string(swap.StatusPending), string(swap.StatusPoolFulfilled)})).
		Where("timelock <= ?", now).
		Order("timelock ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiry candidates: %w", err)
	}
	return toSwaps(daos), nil
}

func (s *pgStore) SetUserHTLC(ctx context.Context, id, contractID, txRef string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("user_htlc_contract = ?", contractID).
		Set("user_funding_tx = ?", txRef).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("user_htlc_contract IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to set user HTLC: %w", err)
	}
	return rowsChanged(res)
}

func (s *pgStore) SetPoolHTLC(ctx context.Context, id, contractID, txRef string, poolTimelock time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("status = ?", string(swap.StatusPoolFulfilled)).
		Set("pool_htlc_contract = ?", contractID).
		Set("pool_funding_tx = ?", txRef).
		Set("pool_timelock = ?", poolTimelock).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", string(swap.StatusPending)).
		Where("pool_htlc_contract IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to set pool HTLC: %w", err)
	}
	return rowsChanged(res)
}

func (s *pgStore) UpdateStatus(ctx context.Context, id string, from, to swap.Status) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	return rowsChanged(res)
}

func (s *pgStore) SetUserClaimed(ctx context.Context, id, txRef string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("status = ?", string(swap.StatusUserClaimed)).
		Set("user_claim_tx = ?", txRef).
		Set("user_claimed_at = ?", at).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", string(swap.StatusPoolFulfilled)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to set user claimed: %w", err)
	}
	return rowsChanged(res)
}

func (s *pgStore) SetPoolClaimed(ctx context.Context, id, txRef string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("pool_claim_tx = ?", txRef).
		Set("pool_claimed_at = ?", at).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set pool claimed: %w", err)
	}
	return nil
}

func (s *pgStore) RecordAttemptError(ctx context.Context, id, message string) error {
	_, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("last_error = ?", message).
		Set("attempt_count = attempt_count + 1").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record attempt error: %w", err)
	}
	return nil
}

func (s *pgStore) GetLiquidity(ctx context.Context, chain, token string) (*swap.Liquidity, error) {
	dao := new(LiquidityDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("chain = ?", chain).
		Where("token_address = ?", token).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLiquidityNotFound
		}
		return nil, fmt.Errorf("failed to get liquidity: %w", err)
	}
	return toLiquidity(dao), nil
}

func (s *pgStore) UpsertLiquidity(ctx context.Context, liq *swap.Liquidity) error {
	dao := &LiquidityDao{
		Chain:        liq.Chain,
		TokenAddress: liq.TokenAddress,
		Total:        liq.Total,
		Available:    liq.Available,
		Reserved:     liq.Reserved,
		MinThreshold: liq.MinThreshold,
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (chain, token_address) DO UPDATE").
		Set("total_balance = EXCLUDED.total_balance").
		Set("available_balance = EXCLUDED.available_balance").
		Set("reserved_balance = EXCLUDED.reserved_balance").
		Set("min_threshold = EXCLUDED.min_threshold").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert liquidity: %w", err)
	}
	return nil
}

// ReserveLiquidity is a single-statement compare-and-decrement: the WHERE
// clause guards the balance so two racing agents can never over-reserve.
func (s *pgStore) ReserveLiquidity(ctx context.Context, chain, token, amount string) (bool, error) {
	res, err := s.db.NewUpdate().
		TableExpr("pool_liquidity").
		Set("available_balance = available_balance - ?::DECIMAL", amount).
		Set("reserved_balance = reserved_balance + ?::DECIMAL", amount).
		Set("updated_at = NOW()").
		Where("chain = ?", chain).
		Where("token_address = ?", token).
		Where("available_balance >= ?::DECIMAL", amount).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve liquidity: %w", err)
	}
	return rowsChanged(res)
}

func (s *pgStore) ReleaseLiquidity(ctx context.Context, chain, token, amount string) error {
	res, err := s.db.NewUpdate().
		TableExpr("pool_liquidity").
		Set("available_balance = available_balance + ?::DECIMAL", amount).
		Set("reserved_balance = reserved_balance - ?::DECIMAL", amount).
		Set("updated_at = NOW()").
		Where("chain = ?", chain).
		Where("token_address = ?", token).
		Where("reserved_balance >= ?::DECIMAL", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release liquidity: %w", err)
	}
	changed, err := rowsChanged(res)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("release of %s %s on %s exceeds reservation", amount, token, chain)
	}
	return nil
}

func (s *pgStore) CommitLiquidity(ctx context.Context, chain, token, amount string) error {
	res, err := s.db.NewUpdate().
		TableExpr("pool_liquidity").
		Set("total_balance = total_balance - ?::DECIMAL", amount).
		Set("reserved_balance = reserved_balance - ?::DECIMAL", amount).
		Set("updated_at = NOW()").
		Where("chain = ?", chain).
		Where("token_address = ?", token).
		Where("reserved_balance >= ?::DECIMAL", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit liquidity: %w", err)
	}
	changed, err := rowsChanged(res)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("commit of %s %s on %s exceeds reservation", amount, token, chain)
	}
	return nil
}

func (s *pgStore) CreditLiquidity(ctx context.Context, chain, token, amount string) error {
	dao := &LiquidityDao{
		Chain:        chain,
		TokenAddress: token,
		Total:        amount,
		Available:    amount,
		Reserved:     "0",
		MinThreshold: "0",
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (chain, token_address) DO UPDATE").
		Set("total_balance = pl.total_balance + EXCLUDED.total_balance").
		Set("available_balance = pl.available_balance + EXCLUDED.available_balance").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit liquidity: %w", err)
	}
	return nil
}

func (s *pgStore) InsertOrphanedHTLC(ctx context.Context, orphan *swap.OrphanedHTLC) error {
	dao := &OrphanDao{
		SwapID:       orphan.SwapID,
		Chain:        orphan.Chain,
		TokenAddress: orphan.TokenAddress,
		ContractID:   orphan.ContractID,
		Amount:       orphan.Amount,
		Timelock:     orphan.Timelock,
	}
	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert orphaned HTLC: %w", err)
	}
	orphan.ID = dao.ID
	return nil
}

func (s *pgStore) GetUnresolvedOrphans(ctx context.Context, now time.Time, limit int) ([]*swap.OrphanedHTLC, error) {
	var daos []OrphanDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("resolved_at IS NULL").
		Where("timelock <= ?", now).
		Order("timelock ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved orphaned HTLCs: %w", err)
	}
	orphans := make([]*swap.OrphanedHTLC, len(daos))
	for i := range daos {
		orphans[i] = toOrphan(&daos[i])
	}
	return orphans, nil
}

func (s *pgStore) ResolveOrphanedHTLC(ctx context.Context, id int64, txRef string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*OrphanDao)(nil)).
		Set("refund_tx = ?", strPtr(txRef)).
		Set("resolved_at = ?", at).
		Where("id = ?", id).
		Where("resolved_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve orphaned HTLC: %w", err)
	}
	return nil
}

func (s *pgStore) InsertRelayClaim(ctx context.Context, claim *swap.RelayClaim) error {
	dao := &RelayClaimDao{
		SwapID:      claim.SwapID,
		Beneficiary: claim.Beneficiary,
		ContractID:  claim.ContractID,
		TxRef:       claim.TxRef,
	}
	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert relay claim: %w", err)
	}
	claim.ID = dao.ID
	return nil
}

func (s *pgStore) CountRelayClaimsSince(ctx context.Context, beneficiary string, since time.Time) (int, error) {
	count, err := s.db.NewSelect().
		Model((*RelayClaimDao)(nil)).
		Where("beneficiary = ?", beneficiary).
		Where("created_at > ?", since).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count relay claims: %w", err)
	}
	return count, nil
}

func toSwaps(daos []SwapDao) []*swap.Request {
	swaps := make([]*swap.Request, len(daos))
	for i := range daos {
		swaps[i] = toSwap(&daos[i])
	}
	return swaps
}

func rowsChanged(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
