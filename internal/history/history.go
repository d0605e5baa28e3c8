// Package history implements the per-member purchase history log.
package history

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/retail-checkout/internal/domain/order"
)

// ErrNotFound is returned when a member has no purchase history yet.
var ErrNotFound = errors.New("purchase history not found")

// PurchaseHistory is the append/merge log of settled orders for one member.
// Like the shopping cart it holds one entry per product: appending an order
// for a product already in the history grows that entry's quantity and cost.
type PurchaseHistory struct {
	memberID  int64
	timestamp time.Time
	orders    []order.Order
	index     map[string]int
}

// New creates an empty history for the member, stamped with the current time.
func New(memberID int64) *PurchaseHistory {
	return NewAt(memberID, time.Now(), nil)
}

// NewAt creates a history with an explicit timestamp and initial orders.
// The orders are merged in one by one, so duplicate products collapse.
func NewAt(memberID int64, ts time.Time, orders []order.Order) *PurchaseHistory {
	h := &PurchaseHistory{
		memberID:  memberID,
		timestamp: ts,
		index:     make(map[string]int),
	}
	for _, o := range orders {
		h.AddOrder(o)
	}
	return h
}

// MemberID returns the member this history belongs to.
func (h *PurchaseHistory) MemberID() int64 {
	return h.memberID
}

// Timestamp returns the instant the history was created.
func (h *PurchaseHistory) Timestamp() time.Time {
	return h.timestamp
}

// Time renders the stored timestamp for display.
func (h *PurchaseHistory) Time() string {
	return h.timestamp.Format(time.ANSIC)
}

// AddOrder appends an order, merging into an existing entry when the history
// already contains the same product: quantity and total cost are additive.
func (h *PurchaseHistory) AddOrder(o order.Order) {
	if i, ok := h.index[o.Product.ID]; ok {
		h.orders[i].Quantity += o.Quantity
		h.orders[i].TotalCost = h.orders[i].TotalCost.Add(o.TotalCost)
		return
	}
	h.index[o.Product.ID] = len(h.orders)
	h.orders = append(h.orders, o)
}

// RemoveOrder removes the first entry equal to the given order by the order
// identity rule. Absent orders are a no-op.
func (h *PurchaseHistory) RemoveOrder(o order.Order) {
	for i := range h.orders {
		if h.orders[i].Equal(o) {
			h.orders = append(h.orders[:i], h.orders[i+1:]...)
			clear(h.index)
			for j := range h.orders {
				h.index[h.orders[j].Product.ID] = j
			}
			return
		}
	}
}

// Len returns the number of entries in the history.
func (h *PurchaseHistory) Len() int {
	return len(h.orders)
}

// IsEmpty reports whether the history holds no orders.
func (h *PurchaseHistory) IsEmpty() bool {
	return len(h.orders) == 0
}

// Orders returns a restartable sequence over the entries in insertion order.
func (h *PurchaseHistory) Orders() iter.Seq[order.Order] {
	return func(yield func(order.Order) bool) {
		for i := range h.orders {
			if !yield(h.orders[i]) {
				return
			}
		}
	}
}

// String renders one line per entry: product name, quantity, and total cost.
func (h *PurchaseHistory) String() string {
	var b strings.Builder
	for i := range h.orders {
		o := &h.orders[i]
		fmt.Fprintf(&b, "Product: %s, Amount: %d, Total Cost: $%s\n",
			o.Product.Name, o.Quantity, o.TotalCost.StringFixed(2))
	}
	return b.String()
}

// Repository defines persistence for per-member purchase histories.
type Repository interface {
	// FindByMember returns the member's history, or ErrNotFound when the
	// member has never completed a checkout.
	FindByMember(ctx context.Context, memberID int64) (*PurchaseHistory, error)
	// Append merges a batch of settled orders into the member's history,
	// creating the history record (stamped ts) when none exists.
	Append(ctx context.Context, memberID int64, ts time.Time, orders []order.Order) error
}
