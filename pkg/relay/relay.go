// Package relay submits destination-chain claims on behalf of beneficiaries
// so they can receive tokens without holding gas on the destination chain.
package relay

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/swapsage/resolver/internal/metrics"
	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

// Store is the persistence surface the relay needs.
type Store interface {
	InsertRelayClaim(ctx context.Context, claim *swap.RelayClaim) error
	CountRelayClaimsSince(ctx context.Context, beneficiary string, since time.Time) (int, error)
}

// Lifecycle is the slice of the coordinator the relay drives.
type Lifecycle interface {
	GetSwap(ctx context.Context, id string) (*swap.Request, error)
	RecordUserClaim(ctx context.Context, id, txRef string, at time.Time) error
}

// Ticket describes what the beneficiary must sign to authorize a relayed
// claim.
type Ticket struct {
	SwapID     string `json:"swap_id"`
	ContractID string `json:"contract_id"`
	Chain      string `json:"chain"`
	Message    string `json:"message"`
}

// SubmitParams are the inputs for a relayed claim.
type SubmitParams struct {
	SwapID    string
	Preimage  string
	Signature string
}

// Relay verifies beneficiary signatures and submits claims with the pool's
// gas. Abuse is bounded by a rolling per-beneficiary claim window backed by
// the relay_claims audit table, so the limit holds across relay instances.
type Relay struct {
	cfg       *config.RelayConfig
	store     Store
	lifecycle Lifecycle
	adapters  map[string]htlc.Adapter
	logger    *zap.Logger
}

// New creates a claim relay.
func New(cfg *config.RelayConfig, store Store, lifecycle Lifecycle, adapters map[string]htlc.Adapter, logger *zap.Logger) *Relay {
	return &Relay{
		cfg:       cfg,
		store:     store,
		lifecycle: lifecycle,
		adapters:  adapters,
		logger:    logger,
	}
}

// ClaimMessage is the exact text a beneficiary signs to authorize the relay
// for one swap's destination HTLC.
func ClaimMessage(swapID, contractID string) string {
	return fmt.Sprintf("swapsage gasless claim\nswap: %s\ncontract: %s", swapID, strings.ToLower(contractID))
}

// PrepareClaim returns the signing ticket for a fulfilled swap.
func (r *Relay) PrepareClaim(ctx context.Context, swapID string) (*Ticket, error) {
	req, err := r.lifecycle.GetSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if req.Status == swap.StatusUserClaimed {
		return nil, apperrors.AlreadyClaimedError(nil, fmt.Sprintf("swap %s already claimed", swapID))
	}
	if req.Status != swap.StatusPoolFulfilled || req.PoolHTLCContract == "" {
		return nil, apperrors.WrongStateError(nil,
			fmt.Sprintf("swap %s is %s, destination HTLC not ready", swapID, req.Status))
	}

	return &Ticket{
		SwapID:     req.ID,
		ContractID: req.PoolHTLCContract,
		Chain:      req.DestinationChain,
		Message:    ClaimMessage(req.ID, req.PoolHTLCContract),
	}, nil
}

// SubmitGaslessClaim verifies the beneficiary's signature and preimage,
// enforces the rate limit, claims the destination HTLC and records the
// outcome. Returns the claim transaction reference.
func (r *Relay) SubmitGaslessClaim(ctx context.Context, params SubmitParams) (string, error) {
	req, err := r.lifecycle.GetSwap(ctx, params.SwapID)
	if err != nil {
		return "", err
	}
	if req.Status == swap.StatusUserClaimed {
		return "", apperrors.AlreadyClaimedError(nil, fmt.Sprintf("swap %s already claimed", params.SwapID))
	}
	if req.Status != swap.StatusPoolFulfilled || req.PoolHTLCContract == "" {
		return "", apperrors.WrongStateError(nil,
			fmt.Sprintf("swap %s is %s, destination HTLC not ready", params.SwapID, req.Status))
	}

	if err := r.verifySignature(req, params.Signature); err != nil {
		metrics.RelayClaimsTotal.WithLabelValues("unauthorized").Inc()
		return "", err
	}

	if err := r.checkRateLimit(ctx, req.BeneficiaryAddress); err != nil {
		metrics.RelayClaimsTotal.WithLabelValues("rate_limited").Inc()
		return "", err
	}

	if err := htlc.VerifyPreimage(params.Preimage, req.HashLock); err != nil {
		metrics.RelayClaimsTotal.WithLabelValues("hash_mismatch").Inc()
		return "", err
	}

	adapter, ok := r.adapters[req.DestinationChain]
	if !ok {
		return "", apperrors.ValidationError(nil, fmt.Sprintf("no adapter for chain %q", req.DestinationChain))
	}

	txRef, err := adapter.Claim(ctx, req.PoolHTLCContract, params.Preimage)
	if err != nil {
		metrics.RelayClaimsTotal.WithLabelValues("failed").Inc()
		return "", err
	}

	claim := &swap.RelayClaim{
		SwapID:      req.ID,
		Beneficiary: req.BeneficiaryAddress,
		ContractID:  req.PoolHTLCContract,
		TxRef:       txRef,
	}
	if err := r.store.InsertRelayClaim(ctx, claim); err != nil {
		r.logger.Error("Failed to record relay claim",
			zap.String("swap_id", req.ID), zap.Error(err))
	}
	if err := r.lifecycle.RecordUserClaim(ctx, req.ID, txRef, time.Now().UTC()); err != nil {
		r.logger.Error("Failed to record user claim after relay",
			zap.String("swap_id", req.ID), zap.Error(err))
	}

	metrics.RelayClaimsTotal.WithLabelValues("success").Inc()
	r.logger.Info("Gasless claim relayed",
		zap.String("swap_id", req.ID),
		zap.String("beneficiary", req.BeneficiaryAddress),
		zap.String("tx_hash", txRef))

	return txRef, nil
}

// verifySignature recovers the EIP-191 personal-sign signer of the claim
// message and requires it to be the swap's beneficiary.
func (r *Relay) verifySignature(req *swap.Request, signature string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return apperrors.AuthorizationError(err, "malformed signature")
	}
	// Normalize Ethereum's 27/28 recovery IDs.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return apperrors.AuthorizationError(nil, "malformed signature recovery ID")
	}

	digest := accounts.TextHash([]byte(ClaimMessage(req.ID, req.PoolHTLCContract)))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return apperrors.AuthorizationError(err, "failed to recover signer")
	}
	signer := crypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(signer.Hex(), req.BeneficiaryAddress) {
		return apperrors.AuthorizationError(nil,
			fmt.Sprintf("signature from %s, beneficiary is %s", signer.Hex(), req.BeneficiaryAddress))
	}
	return nil
}

func (r *Relay) checkRateLimit(ctx context.Context, beneficiary string) error {
	since := time.Now().Add(-r.cfg.Window)
	count, err := r.store.CountRelayClaimsSince(ctx, beneficiary, since)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if count >= r.cfg.MaxClaimsPerWindow {
		return apperrors.RateLimitedError(nil,
			fmt.Sprintf("beneficiary %s exceeded %d relayed claims per %s",
				beneficiary, r.cfg.MaxClaimsPerWindow, r.cfg.Window))
	}
	return nil
}
