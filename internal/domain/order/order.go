// Package order defines the order value object and its pricing rule.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/domain/product"
)

var one = decimal.NewFromInt(1)

// Order is a single line of a shopping session: a product snapshot, the
// purchase date, the quantity bought, and the derived total cost.
//
// TotalCost is not kept in sync automatically. It is computed at
// construction and must be refreshed via UpdateCost whenever the quantity
// or the snapshot's price/discount changes. Carts and histories mutate
// Quantity and TotalCost directly when merging duplicate products.
type Order struct {
	Product      product.Product
	PurchaseDate int64
	Quantity     int
	TotalCost    decimal.Decimal
}

// New creates an Order and computes its total cost from the product snapshot.
func New(p product.Product, purchaseDate int64, quantity int) Order {
	o := Order{
		Product:      p,
		PurchaseDate: purchaseDate,
		Quantity:     quantity,
	}
	o.UpdateCost()
	return o
}

// UpdateCost recomputes TotalCost from the snapshot's current price and
// discount and the current quantity:
//
//	cost = price * quantity                  without a discount
//	cost = price * quantity * (1 - rate)     with a discount
func (o *Order) UpdateCost() {
	cost := o.Product.Price.Mul(decimal.NewFromInt(int64(o.Quantity)))
	if d := o.Product.Discount; d != nil {
		cost = cost.Mul(one.Sub(d.Rate()))
	}
	o.TotalCost = cost
}

// Equal reports whether two orders identify the same purchase: same product
// by value, same quantity, same purchase date. Total cost is deliberately
// excluded so quantity-updated duplicates still compare equal on their
// identifying fields.
func (o Order) Equal(other Order) bool {
	return o.Product.Equal(other.Product) &&
		o.Quantity == other.Quantity &&
		o.PurchaseDate == other.PurchaseDate
}
