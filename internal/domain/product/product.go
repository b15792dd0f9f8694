package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInUse is returned when deleting a product still referenced by order lines.
	ErrInUse = errors.New("product is referenced by orders")
	// ErrCategoryNotFound is returned when a category id does not resolve.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryExists is returned when a category name is already taken.
	ErrCategoryExists = errors.New("category already exists")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID           int64
	Name         string
	Price        decimal.Decimal
	Weight       decimal.Decimal
	CategoryID   int64
	CategoryName string
}

// Category groups products on the dashboard.
type Category struct {
	ID   int64
	Name string
}

// Input is the editable part of a product.
type Input struct {
	Name       string
	Price      decimal.Decimal
	Weight     decimal.Decimal
	CategoryID int64
}

const weightPlaces = 3

// Validate rejects empty names and non-positive prices or weights, and
// values finer than the stored precision.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return validation.Errorf("name", "must not be empty")
	}
	if !in.Price.IsPositive() {
		return validation.Errorf("price", "must be greater than 0")
	}
	if !in.Weight.IsPositive() {
		return validation.Errorf("weight", "must be greater than 0")
	}
	if err := validation.Places("price", in.Price, validation.MoneyPlaces); err != nil {
		return err
	}
	return validation.Places("weight", in.Weight, weightPlaces)
}

// ValidateCategoryName rejects blank category names.
func ValidateCategoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validation.Errorf("name", "must not be empty")
	}
	return nil
}

// Repository defines persistence for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, in Input) (*Product, error)
	Update(ctx context.Context, id int64, in Input) error
	Delete(ctx context.Context, id int64) error
}

// CategoryRepository defines persistence for product categories.
// Create must return ErrCategoryExists on a duplicate name.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, name string) (*Category, error)
}
