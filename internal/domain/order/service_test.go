package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

// --- In-memory transactional store ---

type memStore struct {
	mu        sync.Mutex
	clients   map[int64]client.Client
	products  map[int64]product.Product
	orders    []Order
	nextID    int64
	insertErr error
	fetches   int
}

func newMemStore() *memStore {
	return &memStore{
		clients:  make(map[int64]client.Client),
		products: make(map[int64]product.Product),
		nextID:   1,
	}
}

func (m *memStore) Settle(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, balances: make(map[int64]decimal.Decimal)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Commit.
	m.orders = append(m.orders, tx.orders...)
	for id, b := range tx.balances {
		c := m.clients[id]
		c.Cashback = b
		m.clients[id] = c
	}
	return nil
}

type memTx struct {
	store    *memStore
	orders   []Order
	balances map[int64]decimal.Decimal
}

func (t *memTx) LockClient(_ context.Context, id int64) (*client.Client, error) {
	c, ok := t.store.clients[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return &c, nil
}

func (t *memTx) ProductsByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	t.store.fetches++
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	o.ID = t.store.nextID
	t.store.nextID++
	t.orders = append(t.orders, *o)
	return nil
}

func (t *memTx) SetCashback(_ context.Context, clientID int64, balance decimal.Decimal) error {
	t.balances[clientID] = balance
	return nil
}

// --- Helpers ---

func (m *memStore) withClient(id int64, cashback string) *memStore {
	m.clients[id] = client.Client{ID: id, FullName: "Client", Phone: "1", Cashback: d(cashback)}
	return m
}

func (m *memStore) withProduct(id int64, price string) *memStore {
	m.products[id] = product.Product{ID: id, Name: "Product", Price: d(price), CategoryID: 1}
	return m
}

func newTestService(store Store) *Service {
	s := NewService(store)
	s.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

// --- Tests ---

func TestCreateOrder_Settles(t *testing.T) {
	store := newMemStore().withClient(1, "100").withProduct(10, "50").withProduct(11, "100")
	svc := newTestService(store)

	res, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:        1,
		DeliveryMethod:  "courier",
		DiscountPercent: d("10"),
		DiscountReason:  "loyal",
		CashbackUsed:    d("50"),
		Lines: []LineRequest{
			{ProductID: 10, Quantity: 2},
			{ProductID: 11, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.OrderID)
	assert.True(t, d("130").Equal(res.FinalPrice), "final %s", res.FinalPrice)
	assert.True(t, d("9").Equal(res.CashbackEarned), "earned %s", res.CashbackEarned)
	assert.True(t, d("59").Equal(res.UpdatedClientCashback), "balance %s", res.UpdatedClientCashback)
	assert.True(t, d("59").Equal(store.clients[1].Cashback))
	assert.Equal(t, 1, store.fetches, "products must be fetched in one batch")

	require.Len(t, store.orders, 1)
	o := store.orders[0]
	assert.Equal(t, int64(1), o.ClientID)
	assert.Equal(t, "courier", o.DeliveryMethod)
	assert.Equal(t, "loyal", o.DiscountReason)
	assert.False(t, o.Status)
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), o.CreatedAt)
	require.Len(t, o.Lines, 2)
	assert.True(t, d("50").Equal(o.Lines[0].UnitPrice))
	assert.Equal(t, 2, o.Lines[0].Quantity)
}

func TestCreateOrder_DuplicateProductLines(t *testing.T) {
	store := newMemStore().withClient(1, "0").withProduct(10, "10")
	svc := newTestService(store)

	res, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID: 1,
		Lines: []LineRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 10, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.True(t, d("30").Equal(res.Quote.Subtotal))
	assert.True(t, d("1.5").Equal(res.CashbackEarned))
}

func TestCreateOrder_ClientNotFound(t *testing.T) {
	for _, id := range []int64{42, 0, -1} {
		store := newMemStore().withClient(1, "100").withProduct(10, "10")
		svc := newTestService(store)

		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			ClientID: id,
			Lines:    []LineRequest{{ProductID: 10, Quantity: 1}},
		})
		require.ErrorIs(t, err, client.ErrNotFound, "client %d", id)
		assert.Empty(t, store.orders)
	}
}

func TestCreateOrder_InsufficientCashback(t *testing.T) {
	store := newMemStore().withClient(1, "100").withProduct(10, "200")
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:     1,
		CashbackUsed: d("150"),
		Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInsufficientCashback)

	var icErr *InsufficientCashbackError
	require.ErrorAs(t, err, &icErr)
	assert.True(t, d("100").Equal(icErr.Balance))
	assert.True(t, d("150").Equal(icErr.Requested))

	assert.Empty(t, store.orders)
	assert.True(t, d("100").Equal(store.clients[1].Cashback))
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	store := newMemStore().withClient(1, "100").withProduct(10, "10")
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:     1,
		CashbackUsed: d("5"),
		Lines: []LineRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 999, Quantity: 1},
		},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, int64(999), pnfErr.ProductID)
	assert.ErrorIs(t, err, product.ErrNotFound)

	assert.Empty(t, store.orders)
	assert.True(t, d("100").Equal(store.clients[1].Cashback))
}

func TestCreateOrder_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateOrderRequest
		wantField string
	}{
		{
			name:      "no lines",
			req:       CreateOrderRequest{ClientID: 1},
			wantField: "products",
		},
		{
			name: "zero quantity",
			req: CreateOrderRequest{
				ClientID: 1,
				Lines:    []LineRequest{{ProductID: 10, Quantity: 0}},
			},
			wantField: "products[0].quantity",
		},
		{
			name: "discount above 100",
			req: CreateOrderRequest{
				ClientID:        1,
				DiscountPercent: d("120"),
				Lines:           []LineRequest{{ProductID: 10, Quantity: 1}},
			},
			wantField: "discountPercent",
		},
		{
			name: "negative cashback",
			req: CreateOrderRequest{
				ClientID:     1,
				CashbackUsed: d("-1"),
				Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
			},
			wantField: "cashbackUsed",
		},
		{
			name: "sub-cent cashback",
			req: CreateOrderRequest{
				ClientID:     1,
				CashbackUsed: d("0.005"),
				Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
			},
			wantField: "cashbackUsed",
		},
		{
			name: "discount finer than hundredths",
			req: CreateOrderRequest{
				ClientID:        1,
				DiscountPercent: d("12.345"),
				Lines:           []LineRequest{{ProductID: 10, Quantity: 1}},
			},
			wantField: "discountPercent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore().withClient(1, "100").withProduct(10, "10")
			svc := newTestService(store)

			_, err := svc.CreateOrder(context.Background(), tt.req)
			require.ErrorIs(t, err, validation.ErrInvalid)

			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, store.orders)
		})
	}
}

func TestCreateOrder_StoredAmountsBalance(t *testing.T) {
	store := newMemStore().withClient(1, "0.01").withProduct(10, "0.01")
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:     1,
		CashbackUsed: d("0.005"),
		Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, validation.ErrInvalid)
	assert.Empty(t, store.orders)
	assert.True(t, d("0.01").Equal(store.clients[1].Cashback))

	res, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:        1,
		DiscountPercent: d("12.35"),
		CashbackUsed:    d("0.01"),
		Lines:           []LineRequest{{ProductID: 10, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Len(t, store.orders, 1)

	o := store.orders[0]
	for name, v := range map[string]decimal.Decimal{
		"discount_percent": o.DiscountPercent,
		"cashback_used":    o.CashbackUsed,
		"cashback_earned":  o.CashbackEarned,
		"total_price":      o.TotalPrice,
		"balance":          res.UpdatedClientCashback,
	} {
		assert.True(t, v.Equal(v.Round(2)), "%s=%s", name, v)
	}
	want := d("0.01").Sub(o.CashbackUsed).Add(o.CashbackEarned)
	assert.True(t, want.Equal(store.clients[1].Cashback))
	assert.True(t, want.Equal(res.UpdatedClientCashback))
}

func TestCreateOrder_StoreFailureRollsBack(t *testing.T) {
	store := newMemStore().withClient(1, "100").withProduct(10, "10")
	store.insertErr = errors.New("db write failed")
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID:     1,
		CashbackUsed: d("10"),
		Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert order")
	assert.Empty(t, store.orders)
	assert.True(t, d("100").Equal(store.clients[1].Cashback))
}

func TestCreateOrder_ConcurrentSpendNeverOverdraws(t *testing.T) {
	store := newMemStore().withClient(1, "100").withProduct(10, "100")
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
				ClientID:     1,
				CashbackUsed: d("60"),
				Lines:        []LineRequest{{ProductID: 10, Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientCashback)
		}()
	}
	wg.Wait()

	// 100 - 60 + 5 = 45 after the first order, which cannot cover another 60.
	assert.Equal(t, 1, succeeded)
	assert.True(t, d("45").Equal(store.clients[1].Cashback), "balance %s", store.clients[1].Cashback)
}
