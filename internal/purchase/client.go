package purchase

import (
	"context"
	"fmt"
	"time"

	"riverreader/internal/util"
	"riverreader/pkg/domain"
)

// ProductFullAccess is the store product unlocking every chapter.
const ProductFullAccess = "com.theriverofgod.fullaccess"

// Product describes a purchasable store item.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	PriceAmount float64 `json:"priceAmount"`
	Currency    string  `json:"currency"`
}

// TransactionClient is the external platform-store collaborator. Purchase
// runs the store transaction for full access; Restore queries for a prior
// transaction, reporting found=false as a normal outcome.
type TransactionClient interface {
	Products(ctx context.Context) ([]Product, error)
	Purchase(ctx context.Context) (domain.Receipt, error)
	Restore(ctx context.Context) (receipt domain.Receipt, found bool, err error)
}

// MockClient is the development stand-in for the platform store: purchases
// always succeed and there is never anything to restore. The production
// commerce integration replaces this behind TransactionClient.
type MockClient struct {
	now func() time.Time
}

// NewMockClient returns a mock store client.
func NewMockClient() *MockClient {
	return &MockClient{now: func() time.Time { return time.Now().UTC() }}
}

// Products returns the single full-access product.
func (c *MockClient) Products(_ context.Context) ([]Product, error) {
	return []Product{{
		ID:          ProductFullAccess,
		Title:       "Full Access",
		Description: "Unlock all chapters",
		Price:       "$4.99",
		PriceAmount: 4.99,
		Currency:    "USD",
	}}, nil
}

// Purchase approves immediately with a synthetic transaction id.
func (c *MockClient) Purchase(_ context.Context) (domain.Receipt, error) {
	at := c.now()
	return domain.Receipt{
		Purchased:     true,
		PurchasedAt:   &at,
		TransactionID: fmt.Sprintf("mock_%s", util.NewID()),
	}, nil
}

// Restore reports no prior transaction.
func (c *MockClient) Restore(_ context.Context) (domain.Receipt, bool, error) {
	return domain.Receipt{}, false, nil
}
