package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

type fakeClient struct {
	purchaseReceipt domain.Receipt
	purchaseErr     error
	restoreReceipt  domain.Receipt
	restoreFound    bool
	restoreErr      error
	purchaseCalls   int
}

func (f *fakeClient) Products(context.Context) ([]Product, error) { return nil, nil }

func (f *fakeClient) Purchase(context.Context) (domain.Receipt, error) {
	f.purchaseCalls++
	return f.purchaseReceipt, f.purchaseErr
}

func (f *fakeClient) Restore(context.Context) (domain.Receipt, bool, error) {
	return f.restoreReceipt, f.restoreFound, f.restoreErr
}

func approvedReceipt() domain.Receipt {
	at := time.Now().UTC()
	return domain.Receipt{Purchased: true, PurchasedAt: &at, TransactionID: "txn-1"}
}

func newTestGate(t *testing.T, client TransactionClient) *Gate {
	t.Helper()
	g, err := NewGate(context.Background(), kv.NewMemoryStore(), client)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g
}

func TestLockedChaptersWhenUnpurchased(t *testing.T) {
	g := newTestGate(t, &fakeClient{})

	for _, i := range []int{2, 3, 10, 500} {
		if !g.IsChapterLocked(i) {
			t.Fatalf("chapter %d should be locked before purchase", i)
		}
	}
	for _, i := range []int{-5, -1, 0, 1} {
		if g.IsChapterLocked(i) {
			t.Fatalf("chapter %d should be free regardless of purchase state", i)
		}
	}
}

func TestAllChaptersFreeAfterPurchase(t *testing.T) {
	g := newTestGate(t, &fakeClient{})
	if err := g.SetPurchased(context.Background(), true); err != nil {
		t.Fatalf("set purchased: %v", err)
	}
	for i := -5; i <= 1000; i++ {
		if g.IsChapterLocked(i) {
			t.Fatalf("chapter %d locked after purchase", i)
		}
	}
}

func TestLockedChapterCount(t *testing.T) {
	g := newTestGate(t, &fakeClient{})

	cases := map[int]int{7: 5, 2: 0, 0: 0, 1: 0, 3: 1}
	for total, want := range cases {
		if got := g.LockedChapterCount(total); got != want {
			t.Fatalf("LockedChapterCount(%d) = %d, want %d", total, got, want)
		}
	}

	if err := g.SetPurchased(context.Background(), true); err != nil {
		t.Fatalf("set purchased: %v", err)
	}
	if got := g.LockedChapterCount(7); got != 0 {
		t.Fatalf("purchased count = %d, want 0", got)
	}
}

func TestPurchaseSuccessPersistsReceipt(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	client := &fakeClient{purchaseReceipt: approvedReceipt()}

	g, err := NewGate(ctx, store, client)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if !g.PurchaseFullAccess(ctx) {
		t.Fatalf("purchase should succeed")
	}
	receipt := g.Receipt()
	if !receipt.Purchased || receipt.PurchasedAt == nil || receipt.TransactionID == "" {
		t.Fatalf("purchased receipt must carry timestamp and transaction id: %+v", receipt)
	}
	if g.IsPurchasing() {
		t.Fatalf("in-flight flag must clear after purchase")
	}

	// Only the triple survives a cold start.
	reloaded, err := NewGate(ctx, store, client)
	if err != nil {
		t.Fatalf("reload gate: %v", err)
	}
	if !reloaded.IsPurchased() {
		t.Fatalf("receipt must survive restart")
	}
	if reloaded.PurchaseError() != "" || reloaded.IsPurchasing() || reloaded.IsRestoring() {
		t.Fatalf("session flags must reset on cold start")
	}
}

func TestPurchaseIdempotentShortCircuit(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{purchaseReceipt: approvedReceipt()}
	g := newTestGate(t, client)

	if !g.PurchaseFullAccess(ctx) {
		t.Fatalf("first purchase should succeed")
	}
	calls := client.purchaseCalls

	if !g.PurchaseFullAccess(ctx) {
		t.Fatalf("repeat purchase should report success")
	}
	if client.purchaseCalls != calls {
		t.Fatalf("repeat purchase must not re-run the store transaction")
	}
	if g.IsPurchasing() {
		t.Fatalf("short-circuit must never set the in-flight flag")
	}
}

func TestPurchaseFailureStaysLocked(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, &fakeClient{purchaseErr: errors.New("card declined")})

	if g.PurchaseFullAccess(ctx) {
		t.Fatalf("purchase should fail")
	}
	if g.IsPurchased() {
		t.Fatalf("gate must fail closed")
	}
	if g.PurchaseError() == "" {
		t.Fatalf("failure message must be retrievable")
	}
	if g.IsPurchasing() {
		t.Fatalf("in-flight flag must clear on failure")
	}
	if !g.IsChapterLocked(5) {
		t.Fatalf("chapters must stay locked after failed purchase")
	}
}

func TestRestoreNotFoundIsNormal(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{restoreFound: false, purchaseReceipt: approvedReceipt()}
	g := newTestGate(t, client)

	if g.RestorePurchases(ctx) {
		t.Fatalf("restore with no prior transaction should return false")
	}
	if g.IsPurchased() {
		t.Fatalf("restore miss must not unlock")
	}
	if g.RestoreError() != "" {
		t.Fatalf("restore miss is not an error, got %q", g.RestoreError())
	}
	if g.IsRestoring() {
		t.Fatalf("restoring flag must clear")
	}

	// A failed restore does not block a later purchase.
	if !g.PurchaseFullAccess(ctx) {
		t.Fatalf("purchase after restore miss should still succeed")
	}
}

func TestRestoreFoundUnlocksLikePurchase(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, &fakeClient{restoreFound: true, restoreReceipt: approvedReceipt()})

	if !g.RestorePurchases(ctx) {
		t.Fatalf("restore should succeed")
	}
	receipt := g.Receipt()
	if !receipt.Purchased || receipt.PurchasedAt == nil || receipt.TransactionID == "" {
		t.Fatalf("restored receipt must match fresh-purchase invariant: %+v", receipt)
	}
	if g.IsChapterLocked(100) {
		t.Fatalf("restore must unlock all chapters")
	}
}

func TestRestoreErrorRecorded(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, &fakeClient{restoreErr: errors.New("store unreachable")})

	if g.RestorePurchases(ctx) {
		t.Fatalf("restore should fail")
	}
	if g.RestoreError() == "" {
		t.Fatalf("restore failure message must be retrievable")
	}
	if g.IsRestoring() {
		t.Fatalf("restoring flag must clear on failure")
	}
}

func TestResetReturnsToLocked(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, &fakeClient{})

	if err := g.SetPurchased(ctx, true); err != nil {
		t.Fatalf("set purchased: %v", err)
	}
	if err := g.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	receipt := g.Receipt()
	if receipt.Purchased || receipt.PurchasedAt != nil || receipt.TransactionID != "" {
		t.Fatalf("reset must clear the whole triple: %+v", receipt)
	}
	if !g.IsChapterLocked(2) {
		t.Fatalf("chapters beyond the free range must relock after reset")
	}
}

func TestMockClientBehavior(t *testing.T) {
	ctx := context.Background()
	g, err := NewGate(ctx, kv.NewMemoryStore(), NewMockClient())
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	if g.RestorePurchases(ctx) {
		t.Fatalf("mock client has nothing to restore")
	}
	if !g.PurchaseFullAccess(ctx) {
		t.Fatalf("mock purchase always succeeds")
	}
	products, err := g.Products(ctx)
	if err != nil || len(products) != 1 || products[0].ID != ProductFullAccess {
		t.Fatalf("unexpected products: %+v err=%v", products, err)
	}
}
