package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/domain/discount"
	"github.com/xenking/retail-checkout/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `p.id, p.name, p.price, p.stock, d.rate, d.end_date`

// ProductRepository implements product.Repository backed by PostgreSQL.
// Products are joined with their discount row; discounts past their end
// date are not attached to the returned snapshots.
type ProductRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool, now: time.Now}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN discounts d ON d.product_id = p.id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// GetByID returns a single product by its identifier.
// Returns product.ErrNotFound when no matching product exists.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN discounts d ON d.product_id = p.id
		WHERE p.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	defer rows.Close()

	products, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs returns the products matching the given identifiers in a single
// query. Missing identifiers are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN discounts d ON d.product_id = p.id
		WHERE p.id = ANY($1)
		ORDER BY p.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// DecrementStock reduces a product's stock by qty. The guard in the WHERE
// clause keeps stock non-negative even under concurrent settlements; a
// zero-row update is disambiguated with a follow-up existence check.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return errors.Wrapf(product.ErrInsufficientStock, "product %s", id)
}

func (r *ProductRepository) collect(rows pgx.Rows) ([]product.Product, error) {
	now := r.now()

	var products []product.Product
	for rows.Next() {
		var (
			p       product.Product
			rate    *decimal.Decimal
			endDate *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &rate, &endDate); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		if rate != nil && endDate != nil {
			d, err := discount.New(p.ID, *rate, *endDate)
			if err != nil {
				return nil, fmt.Errorf("mapping discount for %q: %w", p.ID, err)
			}
			if d.ActiveAt(now) {
				p.Discount = &d
			}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading product rows: %w", err)
	}
	return products, nil
}
