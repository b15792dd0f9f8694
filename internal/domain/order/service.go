package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

// ErrInsufficientCashback matches every *InsufficientCashbackError.
var ErrInsufficientCashback = errors.New("insufficient cashback")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Unwrap allows errors.Is(err, product.ErrNotFound).
func (e *ProductNotFoundError) Unwrap() error {
	return product.ErrNotFound
}

// InsufficientCashbackError indicates the client tried to spend more cashback
// than their balance holds.
type InsufficientCashbackError struct {
	ClientID  int64
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientCashbackError) Error() string {
	return fmt.Sprintf("client %d has %s cashback, requested %s",
		e.ClientID, e.Balance.StringFixed(2), e.Requested.StringFixed(2))
}

// Is reports whether target is ErrInsufficientCashback.
func (e *InsufficientCashbackError) Is(target error) bool {
	return target == ErrInsufficientCashback
}

// CreateOrderRequest holds the input for settling an order.
type CreateOrderRequest struct {
	ClientID        int64
	DeliveryMethod  string
	DiscountPercent decimal.Decimal
	DiscountReason  string
	CashbackUsed    decimal.Decimal
	Lines           []LineRequest
}

// CreateOrderResult holds the output of a settled order.
type CreateOrderResult struct {
	OrderID               int64
	FinalPrice            decimal.Decimal
	CashbackEarned        decimal.Decimal
	UpdatedClientCashback decimal.Decimal
	Quote                 Quote
}

// Service settles orders: it prices the lines, persists the order and moves
// the client's cashback balance in one transaction.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a settlement Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateOrder validates the request, then inside one transaction locks the
// client, batch-fetches products, prices the order, inserts it and updates
// the client balance. Nothing is written when any check fails.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ids := uniqueProductIDs(req.Lines)

	var result *CreateOrderResult
	err := s.store.Settle(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockClient(ctx, req.ClientID)
		if err != nil {
			return errors.Wrapf(err, "lock client %d", req.ClientID)
		}

		if c.Cashback.LessThan(req.CashbackUsed) {
			return &InsufficientCashbackError{
				ClientID:  c.ID,
				Balance:   c.Cashback,
				Requested: req.CashbackUsed,
			}
		}

		fetched, err := tx.ProductsByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		prices := make(map[int64]decimal.Decimal, len(fetched))
		for _, p := range fetched {
			prices[p.ID] = p.Price
		}

		lines := make([]Line, len(req.Lines))
		for i, l := range req.Lines {
			price, ok := prices[l.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: l.ProductID}
			}
			lines[i] = Line{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price}
		}

		quote := PriceLines(lines, req.DiscountPercent, req.CashbackUsed)
		balance, err := SettleBalance(c.Cashback, req.CashbackUsed, quote.CashbackEarned)
		if err != nil {
			return err
		}

		o := &Order{
			ClientID:        c.ID,
			CreatedAt:       s.now().UTC(),
			DeliveryMethod:  req.DeliveryMethod,
			DiscountPercent: req.DiscountPercent,
			DiscountReason:  req.DiscountReason,
			CashbackUsed:    req.CashbackUsed,
			CashbackEarned:  quote.CashbackEarned,
			TotalPrice:      quote.FinalPrice,
			Lines:           lines,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.SetCashback(ctx, c.ID, balance); err != nil {
			return errors.Wrap(err, "update cashback")
		}

		result = &CreateOrderResult{
			OrderID:               o.ID,
			FinalPrice:            quote.FinalPrice,
			CashbackEarned:        quote.CashbackEarned,
			UpdatedClientCashback: balance,
			Quote:                 quote,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order settled",
		zap.Int64("order_id", result.OrderID),
		zap.Int64("client_id", req.ClientID),
		zap.Stringer("final_price", result.FinalPrice),
		zap.Stringer("cashback_earned", result.CashbackEarned),
		zap.Stringer("cashback_balance", result.UpdatedClientCashback),
	)
	return result, nil
}

func validateRequest(req CreateOrderRequest) error {
	if len(req.Lines) == 0 {
		return validation.Errorf("products", "at least one product required")
	}
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return validation.Errorf(fmt.Sprintf("products[%d].quantity", i),
				"must be greater than 0 for product %d", l.ProductID)
		}
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return validation.Errorf("discountPercent", "must be between 0 and 100")
	}
	if err := validation.Places("discountPercent", req.DiscountPercent, validation.MoneyPlaces); err != nil {
		return err
	}
	if req.CashbackUsed.IsNegative() {
		return validation.Errorf("cashbackUsed", "must not be negative")
	}
	return validation.Places("cashbackUsed", req.CashbackUsed, validation.MoneyPlaces)
}

func uniqueProductIDs(lines []LineRequest) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}
