package swapstore

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swapsage/resolver/pkg/pgutil"
	mghelper "github.com/swapsage/resolver/pkg/pgutil/migrations"
	"github.com/swapsage/resolver/pkg/swap"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &SwapDao{}, &LiquidityDao{}, &OrphanDao{}, &RelayClaimDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, NewStore(db)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed swapstore tests")
}

func newTestSwap(status swap.Status) *swap.Request {
	return &swap.Request{
		ID:                 uuid.New().String(),
		UserAddress:        "0x1111111111111111111111111111111111111111",
		BeneficiaryAddress: "0x2222222222222222222222222222222222222222",
		SourceChain:        "sepolia",
		DestinationChain:   "base-sepolia",
		SourceToken:        "0x3333333333333333333333333333333333333333",
		DestinationToken:   "0x4444444444444444444444444444444444444444",
		SourceAmount:       "1000000",
		ExpectedAmount:     "995000",
		HashLock:           "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Timelock:           time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second),
		Status:             status,
	}
}

func assertDecimalEqual(t *testing.T, got, want string) {
	t.Helper()

	gotDec, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("failed to parse got decimal %q: %v", got, err)
	}
	wantDec, err := decimal.NewFromString(want)
	if err != nil {
		t.Fatalf("failed to parse want decimal %q: %v", want, err)
	}
	if !gotDec.Equal(wantDec) {
		t.Fatalf("decimal mismatch: got %s want %s", gotDec.String(), wantDec.String())
	}
}

func TestSwapPGStore_CreateAndGet(t *testing.T) {
	ctx, s := setupStore(t)

	req := newTestSwap(swap.StatusPending)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	got, err := s.GetSwapRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSwapRequest() failed: %v", err)
	}
	if got.Status != swap.StatusPending {
		t.Fatalf("status mismatch: got %s want %s", got.Status, swap.StatusPending)
	}
	if got.HashLock != req.HashLock {
		t.Fatalf("hash lock mismatch: got %s want %s", got.HashLock, req.HashLock)
	}
	assertDecimalEqual(t, got.SourceAmount, req.SourceAmount)
	assertDecimalEqual(t, got.ExpectedAmount, req.ExpectedAmount)

	_, err = s.GetSwapRequest(ctx, uuid.New().String())
	if !errors.Is(err, ErrSwapNotFound) {
		t.Fatalf("expected ErrSwapNotFound, got %v", err)
	}
}

func TestSwapPGStore_StatusCAS(t *testing.T) {
	ctx, s := setupStore(t)

	req := newTestSwap(swap.StatusPending)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	ok, err := s.UpdateStatus(ctx, req.ID, swap.StatusPending, swap.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first transition to succeed")
	}

	ok, err = s.UpdateStatus(ctx, req.ID, swap.StatusPending, swap.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	if ok {
		t.Fatalf("expected second transition to report a CAS miss")
	}

	got, err := s.GetSwapRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSwapRequest() failed: %v", err)
	}
	if got.Status != swap.StatusCancelled {
		t.Fatalf("status mismatch after CAS miss: got %s", got.Status)
	}
}

func TestSwapPGStore_HTLCRecording(t *testing.T) {
	ctx, s := setupStore(t)

	req := newTestSwap(swap.StatusPending)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	ok, err := s.SetUserHTLC(ctx, req.ID, "0xc1", "0xf1")
	if err != nil {
		t.Fatalf("SetUserHTLC() failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first SetUserHTLC to write")
	}

	ok, err = s.SetUserHTLC(ctx, req.ID, "0xc2", "0xf2")
	if err != nil {
		t.Fatalf("SetUserHTLC() failed: %v", err)
	}
	if ok {
		t.Fatalf("expected second SetUserHTLC to be a no-op")
	}

	poolTimelock := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	ok, err = s.SetPoolHTLC(ctx, req.ID, "0xd1", "0xf3", poolTimelock)
	if err != nil {
		t.Fatalf("SetPoolHTLC() failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected SetPoolHTLC to transition")
	}

	ok, err = s.SetPoolHTLC(ctx, req.ID, "0xd2", "0xf4", poolTimelock)
	if err != nil {
		t.Fatalf("SetPoolHTLC() failed: %v", err)
	}
	if ok {
		t.Fatalf("expected repeated SetPoolHTLC to miss")
	}

	got, err := s.GetSwapRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSwapRequest() failed: %v", err)
	}
	if got.Status != swap.StatusPoolFulfilled {
		t.Fatalf("status mismatch: got %s want %s", got.Status, swap.StatusPoolFulfilled)
	}
	if got.UserHTLCContract != "0xc1" {
		t.Fatalf("user contract overwritten: got %s", got.UserHTLCContract)
	}
	if got.PoolHTLCContract != "0xd1" {
		t.Fatalf("pool contract mismatch: got %s", got.PoolHTLCContract)
	}
	if got.PoolTimelock == nil || !got.PoolTimelock.Equal(poolTimelock) {
		t.Fatalf("pool timelock mismatch: got %v want %v", got.PoolTimelock, poolTimelock)
	}

	claimedAt := time.Now().UTC().Truncate(time.Second)
	ok, err = s.SetUserClaimed(ctx, req.ID, "0xe1", claimedAt)
	if err != nil {
		t.Fatalf("SetUserClaimed() failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected SetUserClaimed to transition")
	}

	ok, err = s.SetUserClaimed(ctx, req.ID, "0xe2", claimedAt)
	if err != nil {
		t.Fatalf("SetUserClaimed() failed: %v", err)
	}
	if ok {
		t.Fatalf("expected repeated SetUserClaimed to miss")
	}

	if err := s.SetPoolClaimed(ctx, req.ID, "0xe3", claimedAt); err != nil {
		t.Fatalf("SetPoolClaimed() failed: %v", err)
	}

	got, err = s.GetSwapRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSwapRequest() failed: %v", err)
	}
	if got.Status != swap.StatusUserClaimed {
		t.Fatalf("status mismatch: got %s", got.Status)
	}
	if got.UserClaimTx != "0xe1" {
		t.Fatalf("user claim tx mismatch: got %s", got.UserClaimTx)
	}
	if got.PoolClaimTx != "0xe3" {
		t.Fatalf("pool claim tx mismatch: got %s", got.PoolClaimTx)
	}
}

func TestSwapPGStore_CandidateQueries(t *testing.T) {
	ctx, s := setupStore(t)
	now := time.Now().UTC()

	funded := newTestSwap(swap.StatusPending)
	unfunded := newTestSwap(swap.StatusPending)
	expired := newTestSwap(swap.StatusPending)
	expired.Timelock = now.Add(-time.Minute)
	fulfilled := newTestSwap(swap.StatusPoolFulfilled)

	for _, req := range []*swap.Request{funded, unfunded, expired, fulfilled} {
		if err := s.CreateSwapRequest(ctx, req); err != nil {
			t.Fatalf("CreateSwapRequest() failed: %v", err)
		}
	}
	for _, id := range []string{funded.ID, expired.ID} {
		if _, err := s.SetUserHTLC(ctx, id, "0xc-"+id[:8], "0xf-"+id[:8]); err != nil {
			t.Fatalf("SetUserHTLC() failed: %v", err)
		}
	}

	candidates, err := s.GetFulfillmentCandidates(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetFulfillmentCandidates() failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != funded.ID {
		t.Fatalf("unexpected fulfillment candidates: %+v", candidates)
	}

	settlements, err := s.GetSettlementCandidates(ctx, 10)
	if err != nil {
		t.Fatalf("GetSettlementCandidates() failed: %v", err)
	}
	if len(settlements) != 1 || settlements[0].ID != fulfilled.ID {
		t.Fatalf("unexpected settlement candidates: %+v", settlements)
	}

	fulfilled.Timelock = now.Add(-time.Second)
	expiries, err := s.GetExpiryCandidates(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetExpiryCandidates() failed: %v", err)
	}
	if len(expiries) != 1 || expiries[0].ID != expired.ID {
		t.Fatalf("unexpected expiry candidates: %+v", expiries)
	}

	pending, err := s.GetPendingSwaps(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSwaps() failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("unexpected pending count: got %d want 3", len(pending))
	}

	byUser, err := s.GetSwapsByUser(ctx, funded.UserAddress, 2)
	if err != nil {
		t.Fatalf("GetSwapsByUser() failed: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected user listing to honor limit, got %d", len(byUser))
	}
}

func TestSwapPGStore_AttemptErrors(t *testing.T) {
	ctx, s := setupStore(t)

	req := newTestSwap(swap.StatusPending)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	if err := s.RecordAttemptError(ctx, req.ID, "rpc timeout"); err != nil {
		t.Fatalf("RecordAttemptError() failed: %v", err)
	}
	if err := s.RecordAttemptError(ctx, req.ID, "nonce too low"); err != nil {
		t.Fatalf("RecordAttemptError() failed: %v", err)
	}

	got, err := s.GetSwapRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSwapRequest() failed: %v", err)
	}
	if got.AttemptCount != 2 {
		t.Fatalf("attempt count mismatch: got %d want 2", got.AttemptCount)
	}
	if got.LastError != "nonce too low" {
		t.Fatalf("last error mismatch: got %q", got.LastError)
	}
}

func TestLiquidityPGStore_ReserveReleaseCommit(t *testing.T) {
	ctx, s := setupStore(t)

	liq := &swap.Liquidity{
		Chain:        "base-sepolia",
		TokenAddress: "0x4444444444444444444444444444444444444444",
		Total:        "1000",
		Available:    "1000",
		Reserved:     "0",
		MinThreshold: "0",
	}
	if err := s.UpsertLiquidity(ctx, liq); err != nil {
		t.Fatalf("UpsertLiquidity() failed: %v", err)
	}

	ok, err := s.ReserveLiquidity(ctx, liq.Chain, liq.TokenAddress, "400")
	if err != nil {
		t.Fatalf("ReserveLiquidity() failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected reserve to succeed")
	}

	ok, err = s.ReserveLiquidity(ctx, liq.Chain, liq.TokenAddress, "700")
	if err != nil {
		t.Fatalf("ReserveLiquidity() failed: %v", err)
	}
	if ok {
		t.Fatalf("expected over-reserve to fail closed")
	}

	got, err := s.GetLiquidity(ctx, liq.Chain, liq.TokenAddress)
	if err != nil {
		t.Fatalf("GetLiquidity() failed: %v", err)
	}
	assertDecimalEqual(t, got.Available, "600")
	assertDecimalEqual(t, got.Reserved, "400")
	assertDecimalEqual(t, got.Total, "1000")

	if err := s.ReleaseLiquidity(ctx, liq.Chain, liq.TokenAddress, "100"); err != nil {
		t.Fatalf("ReleaseLiquidity() failed: %v", err)
	}
	if err := s.ReleaseLiquidity(ctx, liq.Chain, liq.TokenAddress, "500"); err == nil {
		t.Fatalf("expected over-release to fail")
	}

	if err := s.CommitLiquidity(ctx, liq.Chain, liq.TokenAddress, "300"); err != nil {
		t.Fatalf("CommitLiquidity() failed: %v", err)
	}

	got, err = s.GetLiquidity(ctx, liq.Chain, liq.TokenAddress)
	if err != nil {
		t.Fatalf("GetLiquidity() failed: %v", err)
	}
	assertDecimalEqual(t, got.Total, "700")
	assertDecimalEqual(t, got.Available, "700")
	assertDecimalEqual(t, got.Reserved, "0")

	if err := s.CreditLiquidity(ctx, "sepolia", "0x3333333333333333333333333333333333333333", "250"); err != nil {
		t.Fatalf("CreditLiquidity() failed: %v", err)
	}
	if err := s.CreditLiquidity(ctx, "sepolia", "0x3333333333333333333333333333333333333333", "250"); err != nil {
		t.Fatalf("CreditLiquidity() failed: %v", err)
	}

	credited, err := s.GetLiquidity(ctx, "sepolia", "0x3333333333333333333333333333333333333333")
	if err != nil {
		t.Fatalf("GetLiquidity() failed: %v", err)
	}
	assertDecimalEqual(t, credited.Total, "500")
	assertDecimalEqual(t, credited.Available, "500")

	_, err = s.GetLiquidity(ctx, "sepolia", "0x9999999999999999999999999999999999999999")
	if !errors.Is(err, ErrLiquidityNotFound) {
		t.Fatalf("expected ErrLiquidityNotFound, got %v", err)
	}
}

func TestOrphanPGStore_InsertListResolve(t *testing.T) {
	ctx, s := setupStore(t)
	now := time.Now().UTC()

	req := newTestSwap(swap.StatusPoolFulfilled)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	due := &swap.OrphanedHTLC{
		SwapID:       req.ID,
		Chain:        "base-sepolia",
		TokenAddress: req.DestinationToken,
		ContractID:   "0xd9",
		Amount:       "995000",
		Timelock:     now.Add(-time.Minute).Truncate(time.Second),
	}
	pending := &swap.OrphanedHTLC{
		SwapID:       req.ID,
		Chain:        "base-sepolia",
		TokenAddress: req.DestinationToken,
		ContractID:   "0xda",
		Amount:       "995000",
		Timelock:     now.Add(time.Hour).Truncate(time.Second),
	}
	for _, orphan := range []*swap.OrphanedHTLC{due, pending} {
		if err := s.InsertOrphanedHTLC(ctx, orphan); err != nil {
			t.Fatalf("InsertOrphanedHTLC() failed: %v", err)
		}
		if orphan.ID == 0 {
			t.Fatalf("expected assigned orphan ID")
		}
	}

	// Only the orphan past its timelock is refundable.
	unresolved, err := s.GetUnresolvedOrphans(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetUnresolvedOrphans() failed: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].ID != due.ID {
		t.Fatalf("unexpected unresolved orphans: %+v", unresolved)
	}
	if unresolved[0].ContractID != "0xd9" {
		t.Fatalf("contract ID mismatch: got %s", unresolved[0].ContractID)
	}
	assertDecimalEqual(t, unresolved[0].Amount, "995000")

	if err := s.ResolveOrphanedHTLC(ctx, due.ID, "0xr9", now.Truncate(time.Second)); err != nil {
		t.Fatalf("ResolveOrphanedHTLC() failed: %v", err)
	}

	unresolved, err = s.GetUnresolvedOrphans(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetUnresolvedOrphans() failed: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("expected no unresolved orphans after resolve, got %+v", unresolved)
	}

	// Repeated resolve is a no-op.
	if err := s.ResolveOrphanedHTLC(ctx, due.ID, "0xr9", now.Truncate(time.Second)); err != nil {
		t.Fatalf("repeated ResolveOrphanedHTLC() should succeed: %v", err)
	}
}

func TestRelayClaimPGStore_CountWindow(t *testing.T) {
	ctx, s := setupStore(t)

	req := newTestSwap(swap.StatusPoolFulfilled)
	if err := s.CreateSwapRequest(ctx, req); err != nil {
		t.Fatalf("CreateSwapRequest() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		claim := &swap.RelayClaim{
			SwapID:      req.ID,
			Beneficiary: req.BeneficiaryAddress,
			ContractID:  "0xd1",
			TxRef:       "0xe1",
		}
		if err := s.InsertRelayClaim(ctx, claim); err != nil {
			t.Fatalf("InsertRelayClaim() failed: %v", err)
		}
		if claim.ID == 0 {
			t.Fatalf("expected assigned claim ID")
		}
	}

	count, err := s.CountRelayClaimsSince(ctx, req.BeneficiaryAddress, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountRelayClaimsSince() failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("count mismatch: got %d want 3", count)
	}

	count, err = s.CountRelayClaimsSince(ctx, req.BeneficiaryAddress, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("CountRelayClaimsSince() failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count mismatch outside window: got %d want 0", count)
	}

	count, err = s.CountRelayClaimsSince(ctx, "0x7777777777777777777777777777777777777777", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountRelayClaimsSince() failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count mismatch for other beneficiary: got %d want 0", count)
	}
}
