// Package purchase implements the chapter access gate: a one-time full-access
// purchase decides whether chapters beyond the free range are readable.
// Only the receipt triple is durable; purchase-flow flags are session state
// and reset on process start. Every failure path stays Locked.
package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

// FreeChapterLimit is the count of chapters, by 0-based index, readable
// without purchase. Chapters 0 and 1 are free.
const FreeChapterLimit = 2

const purchaseKey = "purchase"

// Gate governs chapter access based on the persisted purchase receipt.
type Gate struct {
	store  kv.Store
	client TransactionClient

	mu      sync.Mutex
	receipt domain.Receipt

	// session-only flags, never persisted
	purchasing  bool
	restoring   bool
	purchaseErr string
	restoreErr  string
	now         func() time.Time
}

// NewGate loads the persisted receipt. A missing store reads as unpurchased.
func NewGate(ctx context.Context, store kv.Store, client TransactionClient) (*Gate, error) {
	g := &Gate{
		store:  store,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}

	raw, ok, err := store.Get(ctx, purchaseKey)
	if err != nil {
		return nil, fmt.Errorf("load purchase state: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &g.receipt); err != nil {
			return nil, fmt.Errorf("decode purchase state: %w", err)
		}
	}
	return g, nil
}

// IsChapterLocked reports whether the chapter at the given 0-based index is
// locked. Negative indices are trivially below the free limit and therefore
// always free.
func (g *Gate) IsChapterLocked(chapterIndex int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.receipt.Purchased {
		return false
	}
	return chapterIndex >= FreeChapterLimit
}

// LockedChapterCount returns how many of totalChapters are locked.
func (g *Gate) LockedChapterCount(totalChapters int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.receipt.Purchased {
		return 0
	}
	locked := totalChapters - FreeChapterLimit
	if locked < 0 {
		return 0
	}
	return locked
}

// PurchaseFullAccess runs the store transaction and unlocks all chapters on
// success. Already-purchased short-circuits without touching the in-flight
// flag. Failures stay Locked with the message retrievable via PurchaseError.
func (g *Gate) PurchaseFullAccess(ctx context.Context) bool {
	g.mu.Lock()
	if g.receipt.Purchased {
		g.mu.Unlock()
		return true
	}
	g.purchasing = true
	g.purchaseErr = ""
	g.mu.Unlock()

	receipt, err := g.client.Purchase(ctx)

	g.mu.Lock()
	defer func() {
		g.purchasing = false
		g.mu.Unlock()
	}()

	if err != nil {
		g.purchaseErr = fmt.Sprintf("purchase failed: %v", err)
		return false
	}
	if !receipt.Purchased || receipt.PurchasedAt == nil || receipt.TransactionID == "" {
		g.purchaseErr = "purchase failed: incomplete receipt"
		return false
	}
	if err := g.persist(ctx, receipt); err != nil {
		g.purchaseErr = fmt.Sprintf("purchase failed: %v", err)
		return false
	}
	g.receipt = receipt
	return true
}

// RestorePurchases queries the external store for a prior transaction and,
// when found, unlocks exactly as a fresh purchase would. "Nothing to restore"
// returns false without recording an error.
func (g *Gate) RestorePurchases(ctx context.Context) bool {
	g.mu.Lock()
	g.restoring = true
	g.restoreErr = ""
	g.mu.Unlock()

	receipt, found, err := g.client.Restore(ctx)

	g.mu.Lock()
	defer func() {
		g.restoring = false
		g.mu.Unlock()
	}()

	if err != nil {
		g.restoreErr = fmt.Sprintf("restore failed: %v", err)
		return false
	}
	if !found {
		return false
	}
	if !receipt.Purchased || receipt.PurchasedAt == nil || receipt.TransactionID == "" {
		g.restoreErr = "restore failed: incomplete receipt"
		return false
	}
	if err := g.persist(ctx, receipt); err != nil {
		g.restoreErr = fmt.Sprintf("restore failed: %v", err)
		return false
	}
	g.receipt = receipt
	return true
}

// Products lists purchasable items from the external store.
func (g *Gate) Products(ctx context.Context) ([]Product, error) {
	return g.client.Products(ctx)
}

// IsPurchased reports the durable purchase flag.
func (g *Gate) IsPurchased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.receipt.Purchased
}

// Receipt returns the durable purchase triple.
func (g *Gate) Receipt() domain.Receipt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.receipt
}

// IsPurchasing reports whether a purchase is in flight.
func (g *Gate) IsPurchasing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.purchasing
}

// IsRestoring reports whether a restore is in flight.
func (g *Gate) IsRestoring() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.restoring
}

// PurchaseError returns the last purchase failure message, "" when none.
func (g *Gate) PurchaseError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.purchaseErr
}

// RestoreError returns the last restore failure message, "" when none.
func (g *Gate) RestoreError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.restoreErr
}

// SetPurchased forces the purchase flag directly. Development and test use
// only; production flows go through PurchaseFullAccess/RestorePurchases.
func (g *Gate) SetPurchased(ctx context.Context, purchased bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	receipt := domain.Receipt{}
	if purchased {
		at := g.now()
		receipt = domain.Receipt{
			Purchased:     true,
			PurchasedAt:   &at,
			TransactionID: fmt.Sprintf("test_%d", at.UnixMilli()),
		}
	}
	if err := g.persist(ctx, receipt); err != nil {
		return err
	}
	g.receipt = receipt
	return nil
}

// Reset clears the receipt and both error messages, returning the gate to
// Locked. Not exposed to end users in production flows.
func (g *Gate) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.persist(ctx, domain.Receipt{}); err != nil {
		return err
	}
	g.receipt = domain.Receipt{}
	g.purchaseErr = ""
	g.restoreErr = ""
	return nil
}

// persist writes the receipt triple. Callers hold the mutex.
func (g *Gate) persist(ctx context.Context, receipt domain.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode purchase state: %w", err)
	}
	if err := g.store.Set(ctx, purchaseKey, raw); err != nil {
		return fmt.Errorf("persist purchase state: %w", err)
	}
	return nil
}
