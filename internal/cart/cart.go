// Package cart implements the per-session shopping cart aggregate.
//
// A cart holds at most one entry per product: adding an order whose product
// is already present merges into the existing entry instead of appending.
// Entries keep their insertion order for display.
package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/domain/order"
)

// TaxRate is the flat sales tax applied to the cart subtotal.
var TaxRate = decimal.New(15, -2)

var hundred = decimal.NewFromInt(100)

// Cart is an insertion-ordered collection of orders, unique by product.
// The zero value is not usable; construct with New.
type Cart struct {
	orders []order.Order
	index  map[string]int // product ID -> position in orders
}

// New creates an empty shopping cart.
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// AddOrder adds an order to the cart. The incoming order's cost is refreshed
// first. If an entry for the same product already exists, its quantity grows
// by the incoming quantity and its total cost by the incoming order's
// already-computed cost; the merge is additive, not a recompute.
func (c *Cart) AddOrder(o order.Order) {
	o.UpdateCost()
	if i, ok := c.index[o.Product.ID]; ok {
		c.orders[i].Quantity += o.Quantity
		c.orders[i].TotalCost = c.orders[i].TotalCost.Add(o.TotalCost)
		return
	}
	c.index[o.Product.ID] = len(c.orders)
	c.orders = append(c.orders, o)
}

// RemoveOrder removes the first entry equal to the given order, comparing by
// the order identity rule (product, quantity, purchase date). Removing an
// order that is not in the cart is a no-op.
func (c *Cart) RemoveOrder(o order.Order) {
	for i := range c.orders {
		if c.orders[i].Equal(o) {
			c.orders = append(c.orders[:i], c.orders[i+1:]...)
			c.reindex()
			return
		}
	}
}

func (c *Cart) reindex() {
	clear(c.index)
	for i := range c.orders {
		c.index[c.orders[i].Product.ID] = i
	}
}

// UpdateCosts recomputes the total cost of every entry from its product
// snapshot. Call after refreshing snapshots when catalog prices change.
func (c *Cart) UpdateCosts() {
	for i := range c.orders {
		c.orders[i].UpdateCost()
	}
}

// IsEmpty reports whether the cart holds no orders.
func (c *Cart) IsEmpty() bool {
	return len(c.orders) == 0
}

// Size returns the number of entries in the cart.
func (c *Cart) Size() int {
	return len(c.orders)
}

// Clear empties the cart. Callers invoke this after a successful checkout;
// the checkout engine itself never clears the cart.
func (c *Cart) Clear() {
	c.orders = nil
	clear(c.index)
}

// Orders returns a copy of the cart entries in insertion order.
func (c *Cart) Orders() []order.Order {
	out := make([]order.Order, len(c.orders))
	copy(out, c.orders)
	return out
}

// Subtotal returns the sum of entry total costs as currently computed.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for i := range c.orders {
		sum = sum.Add(c.orders[i].TotalCost)
	}
	return sum
}

// Totals returns the cart subtotal, the flat tax on it, and the grand total.
// Tax and total are rounded to cents, half up.
func (c *Cart) Totals() (subtotal, tax, total decimal.Decimal) {
	subtotal = c.Subtotal()
	tax = subtotal.Mul(TaxRate).Round(2)
	total = subtotal.Add(subtotal.Mul(TaxRate)).Round(2)
	return subtotal, tax, total
}

// Summary renders the cart for review before checkout: one line per entry,
// discount details where present, and a subtotal/tax/total block.
func (c *Cart) Summary() string {
	var b strings.Builder
	b.WriteString("----------------- Shopping Cart -----------------\n")
	for i := range c.orders {
		c.orders[i].UpdateCost()
		o := &c.orders[i]
		if d := o.Product.Discount; d != nil {
			gross := o.Product.Price.Mul(decimal.NewFromInt(int64(o.Quantity)))
			fmt.Fprintf(&b, "Product: %s, Amount: %d, Total: $%s\nDiscount: %s%%, Total Cost: $%s\n",
				o.Product.Name, o.Quantity, gross.StringFixed(2),
				d.Rate().Mul(hundred).String(), o.TotalCost.StringFixed(2))
		} else {
			fmt.Fprintf(&b, "Product: %s, Amount: %d, Total Cost: $%s\n",
				o.Product.Name, o.Quantity, o.TotalCost.StringFixed(2))
		}
	}
	b.WriteString(c.totalsBlock())
	return b.String()
}

// Invoice renders a settled-cart invoice: entry lines, the totals block, and
// the paid/owed footer.
func (c *Cart) Invoice() string {
	var b strings.Builder
	b.WriteString("Invoice:\n")
	for i := range c.orders {
		c.orders[i].UpdateCost()
		o := &c.orders[i]
		fmt.Fprintf(&b, "Product: %s, Amount: %d, Total Cost: $%s\n",
			o.Product.Name, o.Quantity, o.TotalCost.StringFixed(2))
	}
	b.WriteString(c.totalsBlock())
	_, _, total := c.Totals()
	fmt.Fprintf(&b, "Paid: $%s\nOwed: $0\n", total.StringFixed(2))
	return b.String()
}

func (c *Cart) totalsBlock() string {
	subtotal, tax, total := c.Totals()
	return fmt.Sprintf("\nSubtotal: $%s\nTax: $%s\nTotal: $%s\n",
		subtotal.StringFixed(2), tax.StringFixed(2), total.StringFixed(2))
}
