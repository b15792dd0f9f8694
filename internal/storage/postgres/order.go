package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
	"github.com/xenking/orders-dashboard/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (client_id, created_at, delivery_method, discount_percent,
			discount_reason, cashback_used, cashback_earned, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	setCashbackSQL = `UPDATE clients SET cashback = $2 WHERE id = $1`
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Settle runs fn inside a READ COMMITTED transaction. Callers serialize on
// the client row through LockClient. Any error from fn rolls back.
func (s *OrderStore) Settle(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockClient(ctx context.Context, id int64) (*client.Client, error) {
	return getClient(ctx, t.tx, lockClientSQL, id)
}

func (t *orderTx) ProductsByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	return productsByIDs(ctx, t.tx, ids)
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.ClientID, o.CreatedAt, o.DeliveryMethod, o.DiscountPercent,
		o.DiscountReason, o.CashbackUsed, o.CashbackEarned, o.TotalPrice, o.Status,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	rows := make([][]any, len(o.Lines))
	for i, l := range o.Lines {
		rows[i] = []any{o.ID, l.ProductID, l.Quantity, l.UnitPrice}
	}
	_, err = t.tx.CopyFrom(ctx,
		pgx.Identifier{"order_lines"},
		[]string{"order_id", "product_id", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting lines of order %d: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) SetCashback(ctx context.Context, clientID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, setCashbackSQL, clientID, balance)
	if err != nil {
		return fmt.Errorf("updating cashback of client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}
