// Package checkout implements the two-phase cart settlement engine.
//
// Processing runs validate-then-settle: a single validation pass collects
// every violation (stock shortfalls, missing products, a funds shortfall)
// before any decision is made, and settlement mutates inventory, balance,
// and history only when validation found nothing. The cart is never
// partially settled.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/retail-checkout/internal/cart"
	"github.com/xenking/retail-checkout/internal/domain/member"
	"github.com/xenking/retail-checkout/internal/domain/product"
	"github.com/xenking/retail-checkout/internal/history"
)

// ErrEmptyCart is returned when a checkout is requested for a cart with no
// orders in it.
var ErrEmptyCart = errors.New("cart is empty")

// Status tags the outcome of a checkout attempt.
type Status string

const (
	// StatusCancelled means the caller declined the confirmation gate.
	// Not an error: nothing was validated and nothing was mutated.
	StatusCancelled Status = "cancelled"
	// StatusRejected means validation found at least one violation.
	// Nothing was mutated.
	StatusRejected Status = "rejected"
	// StatusSettled means stock, balance, and history were all updated.
	StatusSettled Status = "settled"
)

// StockShortfall reports one cart line whose quantity exceeds live stock.
type StockShortfall struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

// FundsShortfall reports a grand total above the buyer's balance.
type FundsShortfall struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

// Purchase is one line of the settlement manifest.
type Purchase struct {
	ProductID string
	Name      string
	Quantity  int
	TotalCost decimal.Decimal
}

// Result is the tagged outcome of Process. Exactly one of the violation
// fields or the manifest is populated, according to Status. Totals are
// always filled so the caller can redisplay the cart.
type Result struct {
	Status    Status
	ReceiptID string

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal

	// Validation violations, populated when Status is StatusRejected.
	OutOfStock []StockShortfall
	Missing    []string
	Funds      *FundsShortfall

	// Manifest of purchased products, populated when Status is StatusSettled.
	Manifest []Purchase
}

// Rejected reports whether the result carries validation violations.
func (r *Result) Rejected() bool {
	return r.Status == StatusRejected
}

// Request carries the inputs for one checkout attempt. Confirmed is the
// caller-supplied decision for the confirmation gate; the engine performs
// no I/O to obtain it.
type Request struct {
	MemberID  int64
	Cart      *cart.Cart
	Confirmed bool
}

// Service coordinates validation and settlement across the catalog, member
// balances, and purchase histories.
type Service struct {
	// mu serializes checkouts so no two settlements interleave between
	// the validation pass and the mutations it authorized.
	mu sync.Mutex

	products  product.Repository
	members   member.Repository
	histories history.Repository
	now       func() time.Time

	settled   metric.Int64Counter
	rejected  metric.Int64Counter
	cancelled metric.Int64Counter
}

// NewService creates a checkout Service with the required collaborators.
func NewService(
	products product.Repository,
	members member.Repository,
	histories history.Repository,
) *Service {
	meter := otel.Meter("retail-checkout/checkout")
	settled, _ := meter.Int64Counter("checkout.settled")
	rejected, _ := meter.Int64Counter("checkout.rejected")
	cancelled, _ := meter.Int64Counter("checkout.cancelled")

	return &Service{
		products:  products,
		members:   members,
		histories: histories,
		now:       time.Now,
		settled:   settled,
		rejected:  rejected,
		cancelled: cancelled,
	}
}

// Process runs one checkout attempt for the member's cart.
//
// Flow: confirmation gate, then a single validation pass over every entry
// collecting all violations, then a decision. Settlement decrements stock
// per line (lookup by product ID, since cart entries hold snapshots),
// debits the balance by the grand total, and appends the settled orders to
// the member's history, merging per product.
//
// The cart is left untouched in all outcomes; clearing it after a settled
// result is the caller's responsibility.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	if req.Cart == nil || req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subtotal, tax, total := req.Cart.Totals()
	res := &Result{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    total,
	}

	if !req.Confirmed {
		res.Status = StatusCancelled
		s.cancelled.Add(ctx, 1)
		return res, nil
	}

	buyer, err := s.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, errors.Wrapf(err, "get member %d", req.MemberID)
	}

	orders := req.Cart.Orders()
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].Product.ID
	}

	// Validation pass: batch-fetch live products once, then check every
	// line before deciding anything.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	live := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		live[p.ID] = p
	}

	for i := range orders {
		o := &orders[i]
		p, ok := live[o.Product.ID]
		if !ok {
			// The snapshot references a product the catalog no longer has.
			// Reported as a violation instead of silently skipping the line.
			res.Missing = append(res.Missing, o.Product.ID)
			continue
		}
		if o.Quantity > p.Stock {
			res.OutOfStock = append(res.OutOfStock, StockShortfall{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: o.Quantity,
				Available: p.Stock,
			})
		}
	}

	if total.GreaterThan(buyer.Balance) {
		res.Funds = &FundsShortfall{
			Required:  total,
			Available: buyer.Balance,
		}
	}

	if len(res.OutOfStock) > 0 || len(res.Missing) > 0 || res.Funds != nil {
		res.Status = StatusRejected
		s.rejected.Add(ctx, 1)
		zctx.From(ctx).Info("checkout rejected",
			zap.Int64("member_id", req.MemberID),
			zap.Int("stock_violations", len(res.OutOfStock)),
			zap.Int("missing_products", len(res.Missing)),
			zap.Bool("insufficient_funds", res.Funds != nil),
		)
		return res, nil
	}

	// Settlement: validation passed, mutate all three resources.
	for i := range orders {
		o := &orders[i]
		if err := s.products.DecrementStock(ctx, o.Product.ID, o.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock for product %s", o.Product.ID)
		}
	}

	if err := s.members.AdjustBalance(ctx, req.MemberID, total.Neg()); err != nil {
		return nil, errors.Wrapf(err, "debit member %d", req.MemberID)
	}

	if err := s.histories.Append(ctx, req.MemberID, s.now(), orders); err != nil {
		return nil, errors.Wrapf(err, "append history for member %d", req.MemberID)
	}

	res.Status = StatusSettled
	res.ReceiptID = uuid.New().String()
	res.Manifest = make([]Purchase, len(orders))
	for i := range orders {
		o := &orders[i]
		res.Manifest[i] = Purchase{
			ProductID: o.Product.ID,
			Name:      live[o.Product.ID].Name,
			Quantity:  o.Quantity,
			TotalCost: o.TotalCost,
		}
	}

	s.settled.Add(ctx, 1)
	zctx.From(ctx).Info("checkout settled",
		zap.Int64("member_id", req.MemberID),
		zap.String("receipt_id", res.ReceiptID),
		zap.String("total", total.StringFixed(2)),
		zap.Int("lines", len(orders)),
	)
	return res, nil
}
