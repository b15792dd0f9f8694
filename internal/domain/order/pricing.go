package order

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero

	// CashbackRate is the share of the post-discount subtotal credited back
	// to the client.
	CashbackRate = decimal.RequireFromString("0.05")
)

// Quote is the price breakdown of an order. Money values are rounded to
// 2 decimal places; intermediate arithmetic is exact.
type Quote struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	CashbackUsed   decimal.Decimal
	FinalPrice     decimal.Decimal
	CashbackEarned decimal.Decimal
}

// PriceLines computes the quote for lines already carrying unit prices.
func PriceLines(lines []Line, discountPercent, cashbackUsed decimal.Decimal) Quote {
	subtotal := zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	discount := DiscountAmount(subtotal, discountPercent)
	discounted := subtotal.Sub(discount)

	return Quote{
		Subtotal:       subtotal.Round(2),
		Discount:       discount.Round(2),
		CashbackUsed:   cashbackUsed,
		FinalPrice:     floorAtZero(discounted.Sub(cashbackUsed)).Round(2),
		CashbackEarned: floorAtZero(discounted.Mul(CashbackRate)).Round(2),
	}
}

// DiscountAmount returns subtotal * percent / 100 without rounding.
func DiscountAmount(subtotal, percent decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(percent).Div(hundred)
}

// SettleBalance returns the client balance after spending used and
// accruing earned. It fails instead of producing a negative balance.
func SettleBalance(balance, used, earned decimal.Decimal) (decimal.Decimal, error) {
	next := balance.Sub(used).Add(earned)
	if next.IsNegative() {
		return zero, errors.Errorf("cashback balance would become negative: %s", next)
	}
	return next, nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
