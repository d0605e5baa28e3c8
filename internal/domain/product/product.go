// Package product defines the catalog item model and its repository contract.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/domain/discount"
)

// Sentinel errors for catalog access.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by DecrementStock when the live stock
	// level is lower than the requested decrement.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product represents a catalog item available for purchase. Orders hold a
// value snapshot of a Product; price or discount changes in the catalog do
// not propagate into existing snapshots.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int
	Discount *discount.Discount
}

// Equal reports whether two product snapshots are the same by value:
// identifier, name, price, and discount. Stock is live inventory state and
// is excluded so that snapshots taken at different times still match.
func (p Product) Equal(other Product) bool {
	if p.ID != other.ID || p.Name != other.Name {
		return false
	}
	if !p.Price.Equal(other.Price) {
		return false
	}
	switch {
	case p.Discount == nil && other.Discount == nil:
		return true
	case p.Discount == nil || other.Discount == nil:
		return false
	default:
		return p.Discount.Equal(*other.Discount)
	}
}

// Repository defines catalog operations needed by the checkout flow.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock reduces the stock of the identified product by qty.
	// It returns ErrNotFound for unknown products and ErrInsufficientStock
	// when the decrement would drive stock negative.
	DecrementStock(ctx context.Context, id string, qty int) error
}
