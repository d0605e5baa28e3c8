// Package member defines the store member model and its repository contract.
// Authentication and credential storage live outside this service.
package member

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested member does not exist.
var ErrNotFound = errors.New("member not found")

// Member is a store account with a spendable currency balance.
type Member struct {
	ID      int64
	Name    string
	Balance decimal.Decimal
}

// Repository defines member balance operations needed by the checkout flow.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
	// AdjustBalance applies a signed delta to the member's balance.
	// Checkout debits by passing the grand total negated.
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) error
}
