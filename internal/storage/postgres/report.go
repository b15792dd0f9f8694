package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/report"
)

const (
	orderStatsSQL = `SELECT o.id, o.client_id, o.created_at, o.total_price,
			COALESCE(SUM(l.quantity), 0)::bigint
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE o.created_at BETWEEN $1 AND $2
		GROUP BY o.id
		ORDER BY o.created_at, o.id`

	categoryCountsSQL = `SELECT c.name, SUM(l.quantity)::bigint
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		JOIN product_categories c ON c.id = p.category_id
		WHERE o.created_at BETWEEN $1 AND $2
		GROUP BY c.name`

	recentOrdersSQL = `SELECT o.id, c.full_name, o.total_price, o.created_at
		FROM orders o
		JOIN clients c ON c.id = o.client_id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $1`

	productQuantitiesSQL = `SELECT p.id, p.name, SUM(l.quantity)::bigint
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		GROUP BY p.id, p.name`

	clientTotalsSQL = `SELECT c.id, c.full_name, SUM(o.total_price)
		FROM orders o
		JOIN clients c ON c.id = o.client_id
		GROUP BY c.id, c.full_name`

	clientOrdersSQL = `SELECT id, created_at, delivery_method, status, discount_reason,
			discount_percent, cashback_used, cashback_earned, total_price
		FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC`

	clientOrderLinesSQL = `SELECT l.order_id, l.product_id, p.name, c.name, l.quantity, l.unit_price
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		JOIN product_categories c ON c.id = p.category_id
		WHERE o.client_id = $1
		ORDER BY l.order_id, l.id`
)

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository backed by PostgreSQL.
type ReportRepository struct {
	pool    *pgxpool.Pool
	clients *ClientRepository
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool, clients: NewClientRepository(pool)}
}

// OrderStats returns per-order totals and unit counts in [from, to].
func (r *ReportRepository) OrderStats(ctx context.Context, from, to time.Time) ([]report.OrderStat, error) {
	rows, err := r.pool.Query(ctx, orderStatsSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying order stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.OrderStat, error) {
		var s report.OrderStat
		err := row.Scan(&s.OrderID, &s.ClientID, &s.CreatedAt, &s.Total, &s.Units)
		return s, err
	})
}

// CategoryCounts returns units sold per category in [from, to].
func (r *ReportRepository) CategoryCounts(ctx context.Context, from, to time.Time) ([]report.CategoryCount, error) {
	rows, err := r.pool.Query(ctx, categoryCountsSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying category counts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[report.CategoryCount])
}

// RecentOrders returns the latest orders, newest first.
func (r *ReportRepository) RecentOrders(ctx context.Context, limit int) ([]report.RecentOrder, error) {
	rows, err := r.pool.Query(ctx, recentOrdersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[report.RecentOrder])
}

// ProductQuantities returns the quantity sold of every product ever ordered.
func (r *ReportRepository) ProductQuantities(ctx context.Context) ([]report.ProductRank, error) {
	rows, err := r.pool.Query(ctx, productQuantitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying product quantities: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[report.ProductRank])
}

// ClientTotals returns the order total of every client with orders.
func (r *ReportRepository) ClientTotals(ctx context.Context) ([]report.ClientRank, error) {
	rows, err := r.pool.Query(ctx, clientTotalsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying client totals: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[report.ClientRank])
}

// ClientByID returns a client by id.
func (r *ReportRepository) ClientByID(ctx context.Context, id int64) (*client.Client, error) {
	return r.clients.GetByID(ctx, id)
}

// ClientByName returns the oldest client with the given full name.
func (r *ReportRepository) ClientByName(ctx context.Context, fullName string) (*client.Client, error) {
	return r.clients.GetByName(ctx, fullName)
}

// ClientOrders returns the client's orders with their lines. Both queries
// run in one repeatable-read snapshot so lines always match their orders.
func (r *ReportRepository) ClientOrders(ctx context.Context, clientID int64) ([]report.OrderDetails, error) {
	var orders []report.OrderDetails
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, clientOrdersSQL, clientID)
		if err != nil {
			return fmt.Errorf("querying client orders: %w", err)
		}
		orders, err = pgx.CollectRows(rows, scanOrderDetails)
		if err != nil {
			return fmt.Errorf("scanning client orders: %w", err)
		}

		index := make(map[int64]int, len(orders))
		for i, o := range orders {
			index[o.OrderID] = i
		}

		rows, err = tx.Query(ctx, clientOrderLinesSQL, clientID)
		if err != nil {
			return fmt.Errorf("querying client order lines: %w", err)
		}
		var (
			orderID int64
			line    report.LineDetails
		)
		_, err = pgx.ForEachRow(rows,
			[]any{&orderID, &line.ProductID, &line.Name, &line.Category, &line.Quantity, &line.Price},
			func() error {
				if i, ok := index[orderID]; ok {
					orders[i].Lines = append(orders[i].Lines, line)
				}
				return nil
			})
		if err != nil {
			return fmt.Errorf("scanning client order lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrderDetails(row pgx.CollectableRow) (report.OrderDetails, error) {
	var o report.OrderDetails
	err := row.Scan(
		&o.OrderID, &o.CreatedAt, &o.DeliveryMethod, &o.Status, &o.DiscountReason,
		&o.DiscountPercent, &o.CashbackUsed, &o.CashbackEarned, &o.FinalPrice,
	)
	return o, err
}
