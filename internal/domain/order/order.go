package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/product"
)

// Order is a settled client purchase. It is immutable once persisted.
type Order struct {
	ID              int64
	ClientID        int64
	CreatedAt       time.Time
	DeliveryMethod  string
	DiscountPercent decimal.Decimal
	DiscountReason  string
	CashbackUsed    decimal.Decimal
	CashbackEarned  decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          bool
	Lines           []Line
}

// Line is a single product position. UnitPrice is the product price at the
// moment of sale.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns UnitPrice multiplied by Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineRequest is a requested product position.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Store opens settlement transactions. Implementations must run fn in a single
// database transaction and roll back every write when fn returns an error.
type Store interface {
	Settle(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store available inside a settlement transaction.
type Tx interface {
	// LockClient loads the client and holds a write lock on it until the
	// transaction ends. Returns client.ErrNotFound for unknown ids.
	LockClient(ctx context.Context, id int64) (*client.Client, error)
	// ProductsByIDs returns the products matching ids in one round-trip.
	// Unknown ids are silently absent from the result.
	ProductsByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
	// InsertOrder persists o with its lines and sets o.ID.
	InsertOrder(ctx context.Context, o *Order) error
	// SetCashback overwrites the client balance.
	SetCashback(ctx context.Context, clientID int64, balance decimal.Decimal) error
}
