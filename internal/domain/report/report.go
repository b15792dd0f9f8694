// Package report aggregates order history into dashboard views: period
// summaries, revenue series, category shares, rankings and client history.
//
// Every operation is a read-only query over the order history as of call
// time. Empty windows produce zero values, never errors.
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/client"
)

// MiniStats summarises the current calendar month.
type MiniStats struct {
	TotalUnitsSold int64
	TotalBuyers    int
	TotalOrders    int
	TotalRevenue   decimal.Decimal
}

// Point is one bucket of a revenue series.
type Point struct {
	Label    string
	RevenueK decimal.Decimal
	Units    int64
}

// Series is a bucketed revenue series with the window total in thousands.
type Series struct {
	RevenueK decimal.Decimal
	Points   []Point
}

// RevenueChart holds the weekly and half-year series.
type RevenueChart struct {
	Week     Series
	HalfYear Series
}

// CategoryShare is a category's share of units sold.
type CategoryShare struct {
	Category   string
	Percentage float64
	Count      int64
}

// RecentSale is an order reduced for the recent sales table.
type RecentSale struct {
	ID     int64
	Client string
	Cost   string
	Date   string
}

// ProductRank is a product with its total quantity sold.
type ProductRank struct {
	ProductID int64
	Name      string
	Quantity  int64
}

// ClientRank is a client with the sum of their order totals.
type ClientRank struct {
	ClientID int64
	FullName string
	Total    decimal.Decimal
}

// ClientDetails is a client with their full order history, newest first.
type ClientDetails struct {
	Client client.Client
	Orders []OrderDetails
}

// OrderDetails is a historical order with its price breakdown.
type OrderDetails struct {
	OrderID         int64
	CreatedAt       time.Time
	Date            string
	DeliveryMethod  string
	Status          bool
	DiscountReason  string
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	CashbackUsed    decimal.Decimal
	CashbackEarned  decimal.Decimal
	FinalPrice      decimal.Decimal
	Lines           []LineDetails
}

// LineDetails is an order line with product and category names resolved.
type LineDetails struct {
	ProductID int64
	Name      string
	Category  string
	Quantity  int
	Price     decimal.Decimal
	Total     decimal.Decimal
}

// OrderStat is the per-order projection used for windowed summaries.
type OrderStat struct {
	OrderID   int64
	ClientID  int64
	CreatedAt time.Time
	Total     decimal.Decimal
	Units     int64
}

// CategoryCount is the quantity sold in one category.
type CategoryCount struct {
	Category string
	Count    int64
}

// RecentOrder is the projection behind RecentSale.
type RecentOrder struct {
	ID         int64
	ClientName string
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// Repository is the read side of the order store. Time bounds are inclusive.
type Repository interface {
	OrderStats(ctx context.Context, from, to time.Time) ([]OrderStat, error)
	CategoryCounts(ctx context.Context, from, to time.Time) ([]CategoryCount, error)
	// RecentOrders returns at most limit orders, newest first.
	RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error)
	ProductQuantities(ctx context.Context) ([]ProductRank, error)
	ClientTotals(ctx context.Context) ([]ClientRank, error)
	// ClientByID and ClientByName return client.ErrNotFound on a miss.
	ClientByID(ctx context.Context, id int64) (*client.Client, error)
	ClientByName(ctx context.Context, fullName string) (*client.Client, error)
	// ClientOrders returns raw order history; derived amounts are left zero.
	ClientOrders(ctx context.Context, clientID int64) ([]OrderDetails, error)
}
