// Package discount defines the product-bound discount value object.
package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for discount construction.
var (
	ErrInvalidRate = errors.New("discount rate must be in [0, 1)")
	ErrZeroEndDate = errors.New("discount end date is required")
)

var one = decimal.NewFromInt(1)

// Discount is an immutable percentage-off tied to a single product.
// The rate is a fraction, not a percentage: 0.10 means 10% off.
// A discount never stacks with another; a product carries at most one.
type Discount struct {
	productID string
	rate      decimal.Decimal
	endDate   time.Time
}

// New creates a Discount for the given product. The rate must be a fraction
// in [0, 1) and the end date must be set; invalid inputs are rejected rather
// than clamped.
func New(productID string, rate decimal.Decimal, endDate time.Time) (Discount, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return Discount{}, ErrInvalidRate
	}
	if endDate.IsZero() {
		return Discount{}, ErrZeroEndDate
	}
	return Discount{
		productID: productID,
		rate:      rate,
		endDate:   endDate,
	}, nil
}

// ProductID returns the identifier of the product this discount is bound to.
func (d Discount) ProductID() string {
	return d.productID
}

// Rate returns the discount fraction.
func (d Discount) Rate() decimal.Decimal {
	return d.rate
}

// EndDate returns the last day the discount is valid.
func (d Discount) EndDate() time.Time {
	return d.endDate
}

// ActiveAt reports whether the discount is still valid at the given instant.
// Comparison is at day granularity in UTC: the discount remains active for
// the whole of its end date.
func (d Discount) ActiveAt(t time.Time) bool {
	ty, tm, td := t.UTC().Date()
	ey, em, ed := d.endDate.UTC().Date()

	if ty != ey {
		return ty < ey
	}
	if tm != em {
		return tm < em
	}
	return td <= ed
}

// Equal reports whether two discounts have the same product binding, rate,
// and expiry day.
func (d Discount) Equal(other Discount) bool {
	return d.productID == other.productID &&
		d.rate.Equal(other.rate) &&
		sameDay(d.endDate, other.endDate)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
