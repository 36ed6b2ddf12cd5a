// Package service exposes the swap lifecycle over HTTP.
package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	apphttp "github.com/swapsage/resolver/pkg/app/http"
	"github.com/swapsage/resolver/pkg/coordinator"
	"github.com/swapsage/resolver/pkg/relay"
	"github.com/swapsage/resolver/pkg/swap"
)

// Lifecycle is the coordinator surface the HTTP layer uses.
type Lifecycle interface {
	CreateSwap(ctx context.Context, params coordinator.CreateParams) (*swap.Request, error)
	GetSwap(ctx context.Context, id string) (*swap.Request, error)
	ListSwapsByUser(ctx context.Context, userAddress string, limit int) ([]*swap.Request, error)
	RecordSourceFunding(ctx context.Context, id, contractID, txRef string) (*swap.Request, error)
	Cancel(ctx context.Context, id string) (*swap.Request, error)
}

// ClaimRelay is the gasless-claim surface the HTTP layer uses.
type ClaimRelay interface {
	PrepareClaim(ctx context.Context, swapID string) (*relay.Ticket, error)
	SubmitGaslessClaim(ctx context.Context, params relay.SubmitParams) (string, error)
}

// HTTP wraps the coordinator and relay to provide HTTP endpoints
type HTTP struct {
	lifecycle Lifecycle
	relay     ClaimRelay
	validate  *validator.Validate
	logger    *zap.Logger
}

// RegisterRoutes registers swap lifecycle endpoints on the given chi router
func RegisterRoutes(r chi.Router, lifecycle Lifecycle, claimRelay ClaimRelay, logger *zap.Logger) {
	h := &HTTP{
		lifecycle: lifecycle,
		relay:     claimRelay,
		validate:  validator.New(),
		logger:    logger,
	}

	r.Post("/swaps", apphttp.HandleError(h.createSwap))
	r.Get("/swaps", apphttp.HandleError(h.listSwaps))
	r.Get("/swaps/{id}", apphttp.HandleError(h.getSwap))
	r.Post("/swaps/{id}/funding", apphttp.HandleError(h.recordFunding))
	r.Post("/swaps/{id}/cancel", apphttp.HandleError(h.cancelSwap))
	r.Get("/swaps/{id}/claim", apphttp.HandleError(h.prepareClaim))
	r.Post("/claims", apphttp.HandleError(h.submitClaim))
}

type createSwapRequest struct {
	UserAddress        string    `json:"user_address" validate:"required,eth_addr"`
	BeneficiaryAddress string    `json:"beneficiary_address" validate:"required,eth_addr"`
	SourceChain        string    `json:"source_chain" validate:"required"`
	SourceToken        string    `json:"source_token" validate:"required,eth_addr"`
	DestinationChain   string    `json:"destination_chain" validate:"required"`
	DestinationToken   string    `json:"destination_token" validate:"required,eth_addr"`
	SourceAmount       string    `json:"source_amount" validate:"required"`
	HashLock           string    `json:"hash_lock" validate:"required,len=66"`
	Timelock           time.Time `json:"timelock"`
}

type recordFundingRequest struct {
	ContractID string `json:"contract_id" validate:"required,len=66"`
	TxHash     string `json:"tx_hash" validate:"required"`
}

type submitClaimRequest struct {
	SwapID    string `json:"swap_id" validate:"required,uuid4"`
	Preimage  string `json:"preimage" validate:"required,len=66"`
	Signature string `json:"signature" validate:"required"`
}

type swapResponse struct {
	ID                 string     `json:"id"`
	UserAddress        string     `json:"user_address"`
	BeneficiaryAddress string     `json:"beneficiary_address"`
	SourceChain        string     `json:"source_chain"`
	DestinationChain   string     `json:"destination_chain"`
	SourceToken        string     `json:"source_token"`
	DestinationToken   string     `json:"destination_token"`
	SourceAmount       string     `json:"source_amount"`
	ExpectedAmount     string     `json:"expected_amount"`
	HashLock           string     `json:"hash_lock"`
	UserHTLCContract   string     `json:"user_htlc_contract,omitempty"`
	PoolHTLCContract   string     `json:"pool_htlc_contract,omitempty"`
	UserClaimTx        string     `json:"user_claim_tx,omitempty"`
	PoolClaimTx        string     `json:"pool_claim_tx,omitempty"`
	Timelock           time.Time  `json:"timelock"`
	PoolTimelock       *time.Time `json:"pool_timelock,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type submitClaimResponse struct {
	SwapID string `json:"swap_id"`
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

func toSwapResponse(req *swap.Request) *swapResponse {
	return &swapResponse{
		ID:                 req.ID,
		UserAddress:        req.UserAddress,
		BeneficiaryAddress: req.BeneficiaryAddress,
		SourceChain:        req.SourceChain,
		DestinationChain:   req.DestinationChain,
		SourceToken:        req.SourceToken,
		DestinationToken:   req.DestinationToken,
		SourceAmount:       req.SourceAmount,
		ExpectedAmount:     req.ExpectedAmount,
		HashLock:           req.HashLock,
		UserHTLCContract:   req.UserHTLCContract,
		PoolHTLCContract:   req.PoolHTLCContract,
		UserClaimTx:        req.UserClaimTx,
		PoolClaimTx:        req.PoolClaimTx,
		Timelock:           req.Timelock,
		PoolTimelock:       req.PoolTimelock,
		Status:             string(req.Status),
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
	}
}

// createSwap handles POST /swaps
func (h *HTTP) createSwap(w http.ResponseWriter, r *http.Request) error {
	var req createSwapRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	created, err := h.lifecycle.CreateSwap(r.Context(), coordinator.CreateParams{
		UserAddress:        req.UserAddress,
		BeneficiaryAddress: req.BeneficiaryAddress,
		SourceChain:        req.SourceChain,
		SourceToken:        req.SourceToken,
		DestinationChain:   req.DestinationChain,
		DestinationToken:   req.DestinationToken,
		SourceAmount:       req.SourceAmount,
		HashLock:           req.HashLock,
		Timelock:           req.Timelock,
	})
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusCreated, toSwapResponse(created))
	return nil
}

// getSwap handles GET /swaps/{id}
func (h *HTTP) getSwap(w http.ResponseWriter, r *http.Request) error {
	req, err := h.lifecycle.GetSwap(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, toSwapResponse(req))
	return nil
}

// listSwaps handles GET /swaps?user=0x...
func (h *HTTP) listSwaps(w http.ResponseWriter, r *http.Request) error {
	userAddress := r.URL.Query().Get("user")
	if userAddress == "" {
		return apperrors.ValidationError(nil, "user query parameter required")
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return apperrors.ValidationError(err, "limit must be a positive integer")
		}
		limit = parsed
	}

	swaps, err := h.lifecycle.ListSwapsByUser(r.Context(), userAddress, limit)
	if err != nil {
		return err
	}

	resp := make([]*swapResponse, 0, len(swaps))
	for _, s := range swaps {
		resp = append(resp, toSwapResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

// recordFunding handles POST /swaps/{id}/funding
func (h *HTTP) recordFunding(w http.ResponseWriter, r *http.Request) error {
	var req recordFundingRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	updated, err := h.lifecycle.RecordSourceFunding(r.Context(), chi.URLParam(r, "id"), req.ContractID, req.TxHash)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, toSwapResponse(updated))
	return nil
}

// cancelSwap handles POST /swaps/{id}/cancel
func (h *HTTP) cancelSwap(w http.ResponseWriter, r *http.Request) error {
	updated, err := h.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, toSwapResponse(updated))
	return nil
}

// prepareClaim handles GET /swaps/{id}/claim
func (h *HTTP) prepareClaim(w http.ResponseWriter, r *http.Request) error {
	ticket, err := h.relay.PrepareClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, ticket)
	return nil
}

// submitClaim handles POST /claims
func (h *HTTP) submitClaim(w http.ResponseWriter, r *http.Request) error {
	var req submitClaimRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	txHash, err := h.relay.SubmitGaslessClaim(r.Context(), relay.SubmitParams{
		SwapID:    req.SwapID,
		Preimage:  req.Preimage,
		Signature: req.Signature,
	})
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, &submitClaimResponse{
		SwapID: req.SwapID,
		TxHash: txHash,
		Status: string(swap.StatusUserClaimed),
	})
	return nil
}

func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.ValidationError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.ValidationError(err, "invalid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.ValidationError(err, "invalid request: "+err.Error())
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
