package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orders-dashboard/internal/domain/product"
)

const (
	productColumns = `p.id, p.name, p.price, p.weight, p.category_id, c.name`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products p JOIN product_categories c ON c.id = p.category_id
		ORDER BY p.id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products p JOIN product_categories c ON c.id = p.category_id
		WHERE p.id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products p JOIN product_categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)`

	createProductSQL = `INSERT INTO products (name, price, weight, category_id)
		VALUES ($1, $2, $3, $4) RETURNING id`

	// A zero category id keeps the current category.
	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, weight = $4,
			category_id = COALESCE(NULLIF($5::bigint, 0), category_id)
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	listCategoriesSQL = `SELECT id, name FROM product_categories ORDER BY name, id`

	getCategorySQL = `SELECT id, name FROM product_categories WHERE id = $1`

	createCategorySQL = `INSERT INTO product_categories (name) VALUES ($1) RETURNING id`
)

var (
	_ product.Repository         = (*ProductRepository)(nil)
	_ product.CategoryRepository = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and
// product.CategoryRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Create inserts a product and returns it with its category resolved.
func (r *ProductRepository) Create(ctx context.Context, in product.Input) (*product.Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx, createProductSQL, in.Name, in.Price, in.Weight, in.CategoryID).Scan(&id)
	if err != nil {
		if constraintViolation(err, codeForeignKeyViolation) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update overwrites the product fields.
func (r *ProductRepository) Update(ctx context.Context, id int64, in product.Input) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, id, in.Name, in.Price, in.Weight, in.CategoryID)
	if err != nil {
		if constraintViolation(err, codeForeignKeyViolation) {
			return product.ErrCategoryNotFound
		}
		return fmt.Errorf("updating product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Products referenced by order lines are kept and
// ErrInUse is returned.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if constraintViolation(err, codeForeignKeyViolation) {
			return product.ErrInUse
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[product.Category])
}

// GetCategory returns a single category.
func (r *ProductRepository) GetCategory(ctx context.Context, id int64) (*product.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[product.Category])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// CreateCategory inserts a category. Duplicate names fail with
// ErrCategoryExists.
func (r *ProductRepository) CreateCategory(ctx context.Context, name string) (*product.Category, error) {
	c := product.Category{Name: name}
	if err := r.pool.QueryRow(ctx, createCategorySQL, name).Scan(&c.ID); err != nil {
		if constraintViolation(err, codeUniqueViolation) {
			return nil, product.ErrCategoryExists
		}
		return nil, fmt.Errorf("creating category %q: %w", name, err)
	}
	return &c, nil
}

func productsByIDs(ctx context.Context, q querier, ids []int64) ([]product.Product, error) {
	rows, err := q.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Weight, &p.CategoryID, &p.CategoryName)
	return p, err
}
