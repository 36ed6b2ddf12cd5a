package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/swap"
)

const (
	testPreimage = "0x1212121212121212121212121212121212121212121212121212121212121212"
	testDestHTLC = "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

func testRelayConfig() *config.RelayConfig {
	return &config.RelayConfig{
		MaxClaimsPerWindow: 3,
		Window:             time.Hour,
	}
}

func newBeneficiary(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signClaim(t *testing.T, key *ecdsa.PrivateKey, swapID, contractID string) string {
	t.Helper()
	digest := accounts.TextHash([]byte(ClaimMessage(swapID, contractID)))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("failed to sign claim message: %v", err)
	}
	// Wallets report V as 27/28.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func fulfilledSwap(t *testing.T, beneficiary string) *swap.Request {
	t.Helper()
	hashLock, err := htlc.HashPreimage(testPreimage)
	if err != nil {
		t.Fatalf("failed to hash preimage: %v", err)
	}
	return &swap.Request{
		ID:                 "swap-1",
		UserAddress:        "0x1111111111111111111111111111111111111111",
		BeneficiaryAddress: beneficiary,
		SourceChain:        "sepolia",
		DestinationChain:   "base-sepolia",
		HashLock:           hashLock,
		PoolHTLCContract:   testDestHTLC,
		Status:             swap.StatusPoolFulfilled,
	}
}

func newTestRelay(req *swap.Request, store *MockStore, dest *MockAdapter, lifecycle *MockLifecycle) *Relay {
	if lifecycle.GetSwapFunc == nil {
		lifecycle.GetSwapFunc = func(id string) (*swap.Request, error) {
			return req, nil
		}
	}
	adapters := map[string]htlc.Adapter{"base-sepolia": dest}
	return New(testRelayConfig(), store, lifecycle, adapters, zap.NewNop())
}

func TestPrepareClaim(t *testing.T) {
	_, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)
	r := newTestRelay(req, &MockStore{}, &MockAdapter{}, &MockLifecycle{})

	ticket, err := r.PrepareClaim(context.Background(), "swap-1")
	if err != nil {
		t.Fatalf("PrepareClaim() failed: %v", err)
	}
	if ticket.ContractID != testDestHTLC {
		t.Errorf("contract ID = %s, want %s", ticket.ContractID, testDestHTLC)
	}
	if !strings.Contains(ticket.Message, "swap-1") || !strings.Contains(ticket.Message, testDestHTLC) {
		t.Errorf("message must bind swap and contract, got %q", ticket.Message)
	}

	req.Status = swap.StatusPending
	req.PoolHTLCContract = ""
	_, err = r.PrepareClaim(context.Background(), "swap-1")
	if !apperrors.Is(err, apperrors.CategoryWrongState) {
		t.Fatalf("expected wrong state for pending swap, got %v", err)
	}

	req.Status = swap.StatusUserClaimed
	_, err = r.PrepareClaim(context.Background(), "swap-1")
	if !apperrors.Is(err, apperrors.CategoryAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}

func TestSubmitGaslessClaim(t *testing.T) {
	key, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)

	var claimedPreimage string
	var audited *swap.RelayClaim
	var recordedTx string

	store := &MockStore{
		InsertRelayClaimFunc: func(claim *swap.RelayClaim) error {
			audited = claim
			return nil
		},
	}
	lifecycle := &MockLifecycle{
		RecordUserClaimFunc: func(id, txRef string, at time.Time) error {
			recordedTx = txRef
			return nil
		},
	}
	dest := &MockAdapter{ClaimFunc: func(contractID, preimage string) (string, error) {
		if contractID != testDestHTLC {
			t.Errorf("claimed wrong contract %s", contractID)
		}
		claimedPreimage = preimage
		return "0xe1", nil
	}}
	r := newTestRelay(req, store, dest, lifecycle)

	txRef, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
		SwapID:    "swap-1",
		Preimage:  testPreimage,
		Signature: signClaim(t, key, "swap-1", testDestHTLC),
	})
	if err != nil {
		t.Fatalf("SubmitGaslessClaim() failed: %v", err)
	}
	if txRef != "0xe1" {
		t.Errorf("tx ref = %s, want 0xe1", txRef)
	}
	if claimedPreimage != testPreimage {
		t.Errorf("claimed with %s, want the submitted preimage", claimedPreimage)
	}
	if audited == nil || audited.Beneficiary != beneficiary {
		t.Errorf("audit row missing or wrong: %+v", audited)
	}
	if recordedTx != "0xe1" {
		t.Errorf("user claim recorded with %s, want 0xe1", recordedTx)
	}
}

func TestSubmitGaslessClaim_WrongSigner(t *testing.T) {
	_, beneficiary := newBeneficiary(t)
	otherKey, _ := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)

	claimed := false
	dest := &MockAdapter{ClaimFunc: func(string, string) (string, error) {
		claimed = true
		return "0xe1", nil
	}}
	r := newTestRelay(req, &MockStore{}, dest, &MockLifecycle{})

	_, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
		SwapID:    "swap-1",
		Preimage:  testPreimage,
		Signature: signClaim(t, otherKey, "swap-1", testDestHTLC),
	})
	if !apperrors.Is(err, apperrors.CategoryAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if claimed {
		t.Error("must not claim with an unauthorized signature")
	}
}

func TestSubmitGaslessClaim_MalformedSignature(t *testing.T) {
	_, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)
	r := newTestRelay(req, &MockStore{}, &MockAdapter{}, &MockLifecycle{})

	for _, sig := range []string{"", "0x1234", "not-hex"} {
		_, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
			SwapID:    "swap-1",
			Preimage:  testPreimage,
			Signature: sig,
		})
		if !apperrors.Is(err, apperrors.CategoryAuthorization) {
			t.Fatalf("expected authorization error for %q, got %v", sig, err)
		}
	}
}

func TestSubmitGaslessClaim_RateLimited(t *testing.T) {
	key, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)

	claimed := false
	store := &MockStore{
		CountRelayClaimsSinceFunc: func(b string, since time.Time) (int, error) {
			if !strings.EqualFold(b, beneficiary) {
				t.Errorf("rate limit counted for %s, want %s", b, beneficiary)
			}
			return 3, nil
		},
	}
	dest := &MockAdapter{ClaimFunc: func(string, string) (string, error) {
		claimed = true
		return "0xe1", nil
	}}
	r := newTestRelay(req, store, dest, &MockLifecycle{})

	_, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
		SwapID:    "swap-1",
		Preimage:  testPreimage,
		Signature: signClaim(t, key, "swap-1", testDestHTLC),
	})
	if !apperrors.Is(err, apperrors.CategoryRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if claimed {
		t.Error("must not claim past the rate limit")
	}
}

func TestSubmitGaslessClaim_WrongPreimage(t *testing.T) {
	key, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)
	r := newTestRelay(req, &MockStore{}, &MockAdapter{}, &MockLifecycle{})

	_, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
		SwapID:    "swap-1",
		Preimage:  "0x9999999999999999999999999999999999999999999999999999999999999999",
		Signature: signClaim(t, key, "swap-1", testDestHTLC),
	})
	if !apperrors.Is(err, apperrors.CategoryHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestSubmitGaslessClaim_AlreadyClaimed(t *testing.T) {
	key, beneficiary := newBeneficiary(t)
	req := fulfilledSwap(t, beneficiary)
	req.Status = swap.StatusUserClaimed
	r := newTestRelay(req, &MockStore{}, &MockAdapter{}, &MockLifecycle{})

	_, err := r.SubmitGaslessClaim(context.Background(), SubmitParams{
		SwapID:    "swap-1",
		Preimage:  testPreimage,
		Signature: signClaim(t, key, "swap-1", testDestHTLC),
	})
	if !apperrors.Is(err, apperrors.CategoryAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}
