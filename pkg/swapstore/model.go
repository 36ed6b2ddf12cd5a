package swapstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/swapsage/resolver/pkg/swap"
)

// SwapDao is a data access object that maps directly to the 'swaps' table in PostgreSQL.
type SwapDao struct {
	bun.BaseModel      `bun:"table:swaps,alias:s"`
	ID                 string     `bun:"id,pk,type:uuid"`
	UserAddress        string     `bun:"user_address,notnull,type:varchar(42)"`
	BeneficiaryAddress string     `bun:"beneficiary_address,notnull,type:varchar(42)"`
	SourceChain        string     `bun:"source_chain,notnull,type:varchar(32)"`
	DestinationChain   string     `bun:"destination_chain,notnull,type:varchar(32)"`
	SourceToken        string     `bun:"source_token,notnull,type:varchar(42)"`
	DestinationToken   string     `bun:"destination_token,notnull,type:varchar(42)"`
	SourceAmount       string     `bun:"source_amount,notnull,type:numeric(38,0)"`
	ExpectedAmount     string     `bun:"expected_amount,notnull,type:numeric(38,0)"`
	HashLock           string     `bun:"hash_lock,notnull,type:varchar(66)"`
	UserHTLCContract   *string    `bun:"user_htlc_contract,type:varchar(66)"`
	PoolHTLCContract   *string    `bun:"pool_htlc_contract,type:varchar(66)"`
	UserFundingTx      *string    `bun:"user_funding_tx,type:varchar(66)"`
	PoolFundingTx      *string    `bun:"pool_funding_tx,type:varchar(66)"`
	UserClaimTx        *string    `bun:"user_claim_tx,type:varchar(66)"`
	PoolClaimTx        *string    `bun:"pool_claim_tx,type:varchar(66)"`
	Timelock           time.Time  `bun:"timelock,notnull"`
	PoolTimelock       *time.Time `bun:"pool_timelock"`
	Status             string     `bun:"status,notnull,type:varchar(20)"`
	LastError          *string    `bun:"last_error,type:text"`
	AttemptCount       int        `bun:"attempt_count,notnull,default:0"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
	PoolClaimedAt      *time.Time `bun:"pool_claimed_at"`
	UserClaimedAt      *time.Time `bun:"user_claimed_at"`
}

// LiquidityDao is a data access object that maps directly to the 'pool_liquidity' table.
type LiquidityDao struct {
	bun.BaseModel `bun:"table:pool_liquidity,alias:pl"`
	Chain         string    `bun:"chain,pk,type:varchar(32)"`
	TokenAddress  string    `bun:"token_address,pk,type:varchar(42)"`
	Total         string    `bun:"total_balance,notnull,type:numeric(38,0)"`
	Available     string    `bun:"available_balance,notnull,type:numeric(38,0)"`
	Reserved      string    `bun:"reserved_balance,notnull,type:numeric(38,0)"`
	MinThreshold  string    `bun:"min_threshold,notnull,default:'0',type:numeric(38,0)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// OrphanDao is a data access object that maps directly to the 'orphaned_htlcs' table.
type OrphanDao struct {
	bun.BaseModel `bun:"table:orphaned_htlcs,alias:oh"`
	ID            int64      `bun:"id,pk,autoincrement"`
	SwapID        string     `bun:"swap_id,notnull,type:uuid"`
	Chain         string     `bun:"chain,notnull,type:varchar(32)"`
	TokenAddress  string     `bun:"token_address,notnull,type:varchar(42)"`
	ContractID    string     `bun:"contract_id,notnull,type:varchar(66)"`
	Amount        string     `bun:"amount,notnull,type:numeric(38,0)"`
	Timelock      time.Time  `bun:"timelock,notnull"`
	RefundTx      *string    `bun:"refund_tx,type:varchar(66)"`
	ResolvedAt    *time.Time `bun:"resolved_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}

// RelayClaimDao is a data access object that maps directly to the 'relay_claims' table.
type RelayClaimDao struct {
	bun.BaseModel `bun:"table:relay_claims,alias:rc"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SwapID        string    `bun:"swap_id,notnull,type:uuid"`
	Beneficiary   string    `bun:"beneficiary,notnull,type:varchar(42)"`
	ContractID    string    `bun:"contract_id,notnull,type:varchar(66)"`
	TxRef         string    `bun:"tx_ref,notnull,type:varchar(66)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// toSwapDao converts a swap.Request to SwapDao.
func toSwapDao(r *swap.Request) *SwapDao {
	return &SwapDao{
		ID:                 r.ID,
		UserAddress:        r.UserAddress,
		BeneficiaryAddress: r.BeneficiaryAddress,
		SourceChain:        r.SourceChain,
		DestinationChain:   r.DestinationChain,
		SourceToken:        r.SourceToken,
		DestinationToken:   r.DestinationToken,
		SourceAmount:       r.SourceAmount,
		ExpectedAmount:     r.ExpectedAmount,
		HashLock:           r.HashLock,
		UserHTLCContract:   strPtr(r.UserHTLCContract),
		PoolHTLCContract:   strPtr(r.PoolHTLCContract),
		UserFundingTx:      strPtr(r.UserFundingTx),
		PoolFundingTx:      strPtr(r.PoolFundingTx),
		UserClaimTx:        strPtr(r.UserClaimTx),
		PoolClaimTx:        strPtr(r.PoolClaimTx),
		Timelock:           r.Timelock,
		PoolTimelock:       r.PoolTimelock,
		Status:             string(r.Status),
		LastError:          strPtr(r.LastError),
		AttemptCount:       r.AttemptCount,
		PoolClaimedAt:      r.PoolClaimedAt,
		UserClaimedAt:      r.UserClaimedAt,
	}
}

// toSwap converts a SwapDao to swap.Request.
func toSwap(dao *SwapDao) *swap.Request {
	return &swap.Request{
		ID:                 dao.ID,
		UserAddress:        dao.UserAddress,
		BeneficiaryAddress: dao.BeneficiaryAddress,
		SourceChain:        dao.SourceChain,
		DestinationChain:   dao.DestinationChain,
		SourceToken:        dao.SourceToken,
		DestinationToken:   dao.DestinationToken,
		SourceAmount:       dao.SourceAmount,
		ExpectedAmount:     dao.ExpectedAmount,
		HashLock:           dao.HashLock,
		UserHTLCContract:   strVal(dao.UserHTLCContract),
		PoolHTLCContract:   strVal(dao.PoolHTLCContract),
		UserFundingTx:      strVal(dao.UserFundingTx),
		PoolFundingTx:      strVal(dao.PoolFundingTx),
		UserClaimTx:        strVal(dao.UserClaimTx),
		PoolClaimTx:        strVal(dao.PoolClaimTx),
		Timelock:           dao.Timelock,
		PoolTimelock:       dao.PoolTimelock,
		Status:             swap.Status(dao.Status),
		LastError:          strVal(dao.LastError),
		AttemptCount:       dao.AttemptCount,
		CreatedAt:          dao.CreatedAt,
		UpdatedAt:          dao.UpdatedAt,
		PoolClaimedAt:      dao.PoolClaimedAt,
		UserClaimedAt:      dao.UserClaimedAt,
	}
}

// toOrphan converts an OrphanDao to swap.OrphanedHTLC.
func toOrphan(dao *OrphanDao) *swap.OrphanedHTLC {
	return &swap.OrphanedHTLC{
		ID:           dao.ID,
		SwapID:       dao.SwapID,
		Chain:        dao.Chain,
		TokenAddress: dao.TokenAddress,
		ContractID:   dao.ContractID,
		Amount:       dao.Amount,
		Timelock:     dao.Timelock,
		RefundTx:     strVal(dao.RefundTx),
		ResolvedAt:   dao.ResolvedAt,
		CreatedAt:    dao.CreatedAt,
	}
}

// toLiquidity converts a LiquidityDao to swap.Liquidity.
func toLiquidity(dao *LiquidityDao) *swap.Liquidity {
	return &swap.Liquidity{
		Chain:        dao.Chain,
		TokenAddress: dao.TokenAddress,
		Total:        dao.Total,
		Available:    dao.Available,
		Reserved:     dao.Reserved,
		MinThreshold: dao.MinThreshold,
		UpdatedAt:    dao.UpdatedAt,
	}
}
