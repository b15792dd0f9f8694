package client

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

// ErrNotFound is returned when a client id or name does not resolve.
var ErrNotFound = errors.New("client not found")

// Client is a customer with a spendable cashback balance.
type Client struct {
	ID       int64
	FullName string
	Phone    string
	Address  string
	Cashback decimal.Decimal
	Comment  *string
}

// Profile holds the client fields editable outside of order settlement.
// The cashback balance is deliberately absent.
type Profile struct {
	FullName string
	Phone    string
	Address  string
	Comment  *string
}

// Validate checks the required profile fields.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return validation.Errorf("fullName", "must not be empty")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return validation.Errorf("phone", "must not be empty")
	}
	return nil
}

// New validates the input and returns an unsaved Client.
func New(p Profile, cashback decimal.Decimal) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cashback.IsNegative() {
		return nil, validation.Errorf("cashback", "must not be negative")
	}
	if err := validation.Places("cashback", cashback, validation.MoneyPlaces); err != nil {
		return nil, err
	}
	return &Client{
		FullName: p.FullName,
		Phone:    p.Phone,
		Address:  p.Address,
		Cashback: cashback,
		Comment:  p.Comment,
	}, nil
}

// Repository defines persistence for clients. Implementations return
// ErrNotFound for unknown ids.
type Repository interface {
	List(ctx context.Context) ([]Client, error)
	GetByID(ctx context.Context, id int64) (*Client, error)
	Create(ctx context.Context, c *Client) error
	UpdateProfile(ctx context.Context, id int64, p Profile) error
	Delete(ctx context.Context, id int64) error
}
