package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/retail-checkout/internal/domain/order"
	"github.com/xenking/retail-checkout/internal/history"
)

var _ history.Repository = (*HistoryRepository)(nil)

// HistoryRepository implements history.Repository backed by PostgreSQL.
// The per-product merge rule is expressed as an upsert: appending an order
// for a product already in the history adds to its quantity and total cost.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository returns a HistoryRepository that uses the given pool.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// FindByMember loads the member's history with its orders in insertion order.
// Returns history.ErrNotFound when the member has never checked out.
func (r *HistoryRepository) FindByMember(ctx context.Context, memberID int64) (*history.PurchaseHistory, error) {
	var createdAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT created_at FROM purchase_histories WHERE member_id = $1`, memberID).
		Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("getting history for member %d: %w", memberID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, product_name, price, quantity, purchase_date, total_cost
		FROM purchase_orders
		WHERE member_id = $1
		ORDER BY product_id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("getting history orders for member %d: %w", memberID, err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(
			&o.Product.ID, &o.Product.Name, &o.Product.Price,
			&o.Quantity, &o.PurchaseDate, &o.TotalCost,
		); err != nil {
			return nil, fmt.Errorf("scanning history order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history orders: %w", err)
	}

	return history.NewAt(memberID, createdAt, orders), nil
}

// Append merges a batch of settled orders into the member's history inside
// a single transaction, creating the history record when none exists.
func (r *HistoryRepository) Append(ctx context.Context, memberID int64, ts time.Time, orders []order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning history append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO purchase_histories (member_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (member_id) DO NOTHING`, memberID, ts)
	if err != nil {
		return fmt.Errorf("upserting history for member %d: %w", memberID, err)
	}

	for i := range orders {
		o := &orders[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO purchase_orders
				(member_id, product_id, product_name, price, quantity, purchase_date, total_cost)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (member_id, product_id) DO UPDATE SET
				quantity   = purchase_orders.quantity + EXCLUDED.quantity,
				total_cost = purchase_orders.total_cost + EXCLUDED.total_cost`,
			memberID, o.Product.ID, o.Product.Name, o.Product.Price,
			o.Quantity, o.PurchaseDate, o.TotalCost)
		if err != nil {
			return fmt.Errorf("upserting history order %q: %w", o.Product.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing history append: %w", err)
	}
	return nil
}
