package ownership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
	"github.com/ignite/lead-disposition/internal/store"
)

const day = 24 * time.Hour

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	pol := policy.Default().WithClock(func() time.Time { return t0 })
	return NewService(st, pol), st
}

func TestClaim_LeaseLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ttl := 365 * day

	lease, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0, TTL: ttl})
	if err != nil {
		t.Fatalf("A claim: %v", err)
	}
	if !lease.ExpiresAt.Equal(t0.Add(ttl)) || lease.Refreshed {
		t.Errorf("lease = %+v", lease)
	}

	_, err = svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "B", At: t0.Add(day), TTL: ttl})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("B claim: got %v, want *ConflictError", err)
	}
	if !errors.Is(err, ErrOwnershipConflict) || conflict.Owner != "A" || !conflict.ExpiresAt.Equal(t0.Add(ttl)) {
		t.Errorf("conflict = %+v", conflict)
	}

	later := t0.Add(ttl + day)
	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "B", At: later, TTL: ttl}); err != nil {
		t.Fatalf("B claim after expiry: %v", err)
	}

	hist, _ := st.OwnershipHistory(ctx, "acme.com", 0)
	if len(hist) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(hist))
	}
	if hist[0].Reason != domain.ReasonExpired || hist[0].PreviousOwner != "A" || hist[0].NewOwner != "B" {
		t.Errorf("latest row = %+v", hist[0])
	}
	if hist[1].Reason != domain.ReasonFirstClaim || hist[1].PreviousOwner != "" || hist[1].NewOwner != "A" {
		t.Errorf("first row = %+v", hist[1])
	}
}

func TestClaim_RefreshWritesNoLedgerRow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0, TTL: 10 * day}); err != nil {
		t.Fatal(err)
	}
	lease, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0.Add(5 * day), TTL: 10 * day})
	if err != nil {
		t.Fatal(err)
	}
	if !lease.Refreshed || !lease.ExpiresAt.Equal(t0.Add(15*day)) || !lease.OwnedAt.Equal(t0) {
		t.Errorf("refreshed lease = %+v", lease)
	}
	hist, _ := st.OwnershipHistory(ctx, "acme.com", 0)
	if len(hist) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(hist))
	}
}

func TestClaim_NormalizesDomain(t *testing.T) {
	svc, st := newTestService(t)
	if _, err := svc.Claim(context.Background(), ClaimRequest{Domain: "https://WWW.Acme.com/", ClientID: "A", At: t0}); err != nil {
		t.Fatal(err)
	}
	co, err := st.GetCompany(context.Background(), "acme.com")
	if err != nil {
		t.Fatalf("company not created under normalized key: %v", err)
	}
	if co.Ownership.OwnerID != "A" || co.Ownership.Validate() != nil {
		t.Errorf("ownership = %+v", co.Ownership)
	}
}

func TestClaim_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: fmt.Sprintf("client-%d", i), At: t0})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrOwnershipConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
	hist, _ := st.OwnershipHistory(ctx, "acme.com", 0)
	if len(hist) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(hist))
	}
}

func TestRelease(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Release(ctx, "acme.com", "B", domain.ReasonManualRelease); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner release: got %v, want ErrNotOwner", err)
	}
	if err := svc.Release(ctx, "acme.com", "A", domain.ReasonExpired); !errors.Is(err, ErrInvalidReason) {
		t.Errorf("bad reason: got %v", err)
	}
	if err := svc.Release(ctx, "acme.com", "A", domain.ReasonManualRelease); err != nil {
		t.Fatalf("owner release: %v", err)
	}

	co, _ := st.GetCompany(ctx, "acme.com")
	if co.Ownership.Held() || co.Ownership.ExpiresAt != nil {
		t.Errorf("ownership not cleared: %+v", co.Ownership)
	}
	hist, _ := st.OwnershipHistory(ctx, "acme.com", 1)
	if hist[0].Reason != domain.ReasonManualRelease || hist[0].NewOwner != "" || hist[0].PreviousOwner != "A" {
		t.Errorf("release row = %+v", hist[0])
	}

	if err := svc.Release(ctx, "acme.com", "", domain.ReasonAdminTransfer); err != nil {
		t.Errorf("admin release of unowned company: %v", err)
	}
	hist, _ = st.OwnershipHistory(ctx, "acme.com", 0)
	if len(hist) != 2 {
		t.Errorf("no-op release wrote a row: %d rows", len(hist))
	}

	if err := svc.Release(ctx, "ghost.com", "A", domain.ReasonManualRelease); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown company: got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0}); err != nil {
		t.Fatal(err)
	}
	lease, err := svc.Transfer(ctx, "acme.com", "B", t0.Add(day), 30*day)
	if err != nil {
		t.Fatal(err)
	}
	if lease.OwnerID != "B" || !lease.ExpiresAt.Equal(t0.Add(31*day)) {
		t.Errorf("lease = %+v", lease)
	}
	hist, _ := st.OwnershipHistory(ctx, "acme.com", 1)
	if hist[0].Reason != domain.ReasonAdminTransfer || hist[0].PreviousOwner != "A" || hist[0].NewOwner != "B" {
		t.Errorf("transfer row = %+v", hist[0])
	}
}

func TestSweepExpired_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	for _, dom := range []string{"acme.com", "globex.com"} {
		if _, err := svc.Claim(ctx, ClaimRequest{Domain: dom, ClientID: "A", At: t0, TTL: 10 * day}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "initech.com", ClientID: "B", At: t0, TTL: 100 * day}); err != nil {
		t.Fatal(err)
	}

	now := t0.Add(10 * day)
	res, err := svc.SweepExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Released != 2 || res.Failed != 0 {
		t.Errorf("first sweep = %+v", res)
	}
	res, _ = svc.SweepExpired(ctx, now)
	if res.Scanned != 0 || res.Released != 0 {
		t.Errorf("second sweep = %+v", res)
	}

	hist, _ := st.OwnershipHistory(ctx, "acme.com", 0)
	expired := 0
	for _, h := range hist {
		if h.Reason == domain.ReasonExpired {
			expired++
		}
	}
	if expired != 1 {
		t.Errorf("expired rows = %d, want 1", expired)
	}
	co, _ := st.GetCompany(ctx, "initech.com")
	if co.Ownership.OwnerID != "B" {
		t.Error("unexpired lease was swept")
	}
}

func TestSweepExpired_DrainsPastOneBatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	n := DefaultSweepBatch + 100
	for i := 0; i < n; i++ {
		dom := fmt.Sprintf("d%d.com", i)
		if _, err := svc.Claim(ctx, ClaimRequest{Domain: dom, ClientID: "A", At: t0, TTL: day}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.SweepExpired(ctx, t0.Add(2*day))
	if err != nil {
		t.Fatal(err)
	}
	if res.Released != n || res.Failed != 0 {
		t.Fatalf("sweep = %+v, want %d released", res, n)
	}
	for _, dom := range []string{"d0.com", fmt.Sprintf("d%d.com", n-1)} {
		co, err := st.GetCompany(ctx, dom)
		if err != nil {
			t.Fatal(err)
		}
		if co.Ownership.Held() {
			t.Errorf("%s still owned by %q", dom, co.Ownership.OwnerID)
		}
	}
	owned, err := svc.ListOwned(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 0 {
		t.Errorf("owned after sweep = %d", len(owned))
	}
}

func TestCanTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ok, own, err := svc.CanTarget(ctx, "acme.com", "B", t0)
	if err != nil || !ok || own != nil {
		t.Errorf("unknown company: ok=%v own=%v err=%v", ok, own, err)
	}
	if _, err := svc.Claim(ctx, ClaimRequest{Domain: "acme.com", ClientID: "A", At: t0, TTL: day}); err != nil {
		t.Fatal(err)
	}
	if ok, own, _ := svc.CanTarget(ctx, "acme.com", "B", t0); ok || own == nil || own.OwnerID != "A" {
		t.Errorf("B during A's lease: ok=%v own=%+v", ok, own)
	}
	if ok, _, _ := svc.CanTarget(ctx, "acme.com", "A", t0); !ok {
		t.Error("holder should be able to target")
	}
	if ok, _, _ := svc.CanTarget(ctx, "acme.com", "B", t0.Add(day)); !ok {
		t.Error("lapsed lease should be targetable")
	}
	owned, _ := svc.ListOwned(ctx, "A")
	if len(owned) != 1 || owned[0].Domain != "acme.com" {
		t.Errorf("ListOwned = %+v", owned)
	}
}
