package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/retail-checkout/internal/cart"
	"github.com/xenking/retail-checkout/internal/domain/discount"
	"github.com/xenking/retail-checkout/internal/domain/member"
	"github.com/xenking/retail-checkout/internal/domain/order"
	"github.com/xenking/retail-checkout/internal/domain/product"
	"github.com/xenking/retail-checkout/internal/history"
)

const purchaseDate = int64(1700000000)

// --- Mock implementations ---

type mockProductRepo struct {
	byID       map[string]*product.Product
	decrements map[string]int
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, id string, qty int) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	if qty > p.Stock {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	if m.decrements == nil {
		m.decrements = make(map[string]int)
	}
	m.decrements[id] += qty
	return nil
}

type mockMemberRepo struct {
	byID map[int64]*member.Member
}

func (m *mockMemberRepo) GetByID(_ context.Context, id int64) (*member.Member, error) {
	mb, ok := m.byID[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	return mb, nil
}

func (m *mockMemberRepo) AdjustBalance(_ context.Context, id int64, delta decimal.Decimal) error {
	mb, ok := m.byID[id]
	if !ok {
		return member.ErrNotFound
	}
	mb.Balance = mb.Balance.Add(delta)
	return nil
}

type mockHistoryRepo struct {
	byMember map[int64]*history.PurchaseHistory
}

func (m *mockHistoryRepo) FindByMember(_ context.Context, memberID int64) (*history.PurchaseHistory, error) {
	h, ok := m.byMember[memberID]
	if !ok {
		return nil, history.ErrNotFound
	}
	return h, nil
}

func (m *mockHistoryRepo) Append(_ context.Context, memberID int64, ts time.Time, orders []order.Order) error {
	if m.byMember == nil {
		m.byMember = make(map[int64]*history.PurchaseHistory)
	}
	h, ok := m.byMember[memberID]
	if !ok {
		h = history.NewAt(memberID, ts, nil)
		m.byMember[memberID] = h
	}
	for _, o := range orders {
		h.AddOrder(o)
	}
	return nil
}

// --- Helpers ---

func newTestProduct(t *testing.T, id, name, price string, stock int, discountRate string) product.Product {
	t.Helper()

	p := product.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	if discountRate != "" {
		d, err := discount.New(id, decimal.RequireFromString(discountRate),
			time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		p.Discount = &d
	}
	return p
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func newMemberRepo(members ...member.Member) *mockMemberRepo {
	byID := make(map[int64]*member.Member, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}
	return &mockMemberRepo{byID: byID}
}

func newTestService(products *mockProductRepo, members *mockMemberRepo, histories *mockHistoryRepo) *Service {
	svc := NewService(products, members, histories)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func cartWith(orders ...order.Order) *cart.Cart {
	c := cart.New()
	for _, o := range orders {
		c.AddOrder(o)
	}
	return c
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// --- Tests ---

func TestProcess_EmptyCart(t *testing.T) {
	svc := newTestService(newProductRepo(), newMemberRepo(), &mockHistoryRepo{})

	_, err := svc.Process(context.Background(), Request{MemberID: 1, Cart: cart.New(), Confirmed: true})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Process(context.Background(), Request{MemberID: 1, Confirmed: true})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestProcess_Cancelled(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(100)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(p, purchaseDate, 5)),
		Confirmed: false,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assertDecimal(t, "50.00", res.Subtotal)
	assertDecimal(t, "7.50", res.Tax)
	assertDecimal(t, "57.50", res.Total)

	// Nothing was touched.
	assert.Equal(t, 10, products.byID["p1"].Stock)
	assertDecimal(t, "100", members.byID[1].Balance)
	assert.Empty(t, histories.byMember)
}

func TestProcess_Settled(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(100)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(p, purchaseDate, 5)),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSettled, res.Status)
	assert.NotEmpty(t, res.ReceiptID)
	assertDecimal(t, "50.00", res.Subtotal)
	assertDecimal(t, "7.50", res.Tax)
	assertDecimal(t, "57.50", res.Total)

	require.Len(t, res.Manifest, 1)
	assert.Equal(t, "p1", res.Manifest[0].ProductID)
	assert.Equal(t, "Widget", res.Manifest[0].Name)
	assert.Equal(t, 5, res.Manifest[0].Quantity)
	assertDecimal(t, "50.00", res.Manifest[0].TotalCost)

	// All three resources mutated.
	assert.Equal(t, 5, products.byID["p1"].Stock)
	assertDecimal(t, "42.50", members.byID[1].Balance)

	h, ok := histories.byMember[1]
	require.True(t, ok)
	require.Equal(t, 1, h.Len())
	for o := range h.Orders() {
		assert.Equal(t, 5, o.Quantity)
		assertDecimal(t, "50.00", o.TotalCost)
	}
}

func TestProcess_SettledWithDiscount(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "0.20")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(100)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(p, purchaseDate, 5)),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSettled, res.Status)
	assertDecimal(t, "40.00", res.Subtotal)
	assertDecimal(t, "6.00", res.Tax)
	assertDecimal(t, "46.00", res.Total)
	assertDecimal(t, "54.00", members.byID[1].Balance)
}

func TestProcess_StockShortfall(t *testing.T) {
	p1 := newTestProduct(t, "p1", "Widget", "10.00", 3, "")
	p2 := newTestProduct(t, "p2", "Gadget", "5.00", 100, "")
	products := newProductRepo(p1, p2)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(1000)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID: 1,
		Cart: cartWith(
			order.New(p1, purchaseDate, 5),
			order.New(p2, purchaseDate, 2),
		),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.True(t, res.Rejected())

	require.Len(t, res.OutOfStock, 1)
	assert.Equal(t, "p1", res.OutOfStock[0].ProductID)
	assert.Equal(t, "Widget", res.OutOfStock[0].Name)
	assert.Equal(t, 5, res.OutOfStock[0].Requested)
	assert.Equal(t, 3, res.OutOfStock[0].Available)
	assert.Nil(t, res.Funds)

	// No partial settlement: the valid p2 line was not decremented either.
	assert.Equal(t, 3, products.byID["p1"].Stock)
	assert.Equal(t, 100, products.byID["p2"].Stock)
	assertDecimal(t, "1000", members.byID[1].Balance)
	assert.Empty(t, histories.byMember)
}

func TestProcess_FundsShortfall(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(50)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(p, purchaseDate, 5)),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Empty(t, res.OutOfStock)

	require.NotNil(t, res.Funds)
	assertDecimal(t, "57.50", res.Funds.Required)
	assertDecimal(t, "50", res.Funds.Available)

	assert.Equal(t, 10, products.byID["p1"].Stock)
	assertDecimal(t, "50", members.byID[1].Balance)
}

func TestProcess_BalanceExactlyCoversTotal(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.RequireFromString("57.50")})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(p, purchaseDate, 5)),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSettled, res.Status)
	assert.True(t, members.byID[1].Balance.IsZero())
}

func TestProcess_CollectsAllViolations(t *testing.T) {
	p1 := newTestProduct(t, "p1", "Widget", "10.00", 1, "")
	p2 := newTestProduct(t, "p2", "Gadget", "500.00", 0, "")
	gone := newTestProduct(t, "p3", "Gizmo", "5.00", 10, "")
	products := newProductRepo(p1, p2)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(20)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID: 1,
		Cart: cartWith(
			order.New(p1, purchaseDate, 5),
			order.New(p2, purchaseDate, 1),
			order.New(gone, purchaseDate, 1),
		),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Len(t, res.OutOfStock, 2)
	assert.Equal(t, []string{"p3"}, res.Missing)
	require.NotNil(t, res.Funds)
	assertDecimal(t, "20", res.Funds.Available)
}

func TestProcess_MissingProduct(t *testing.T) {
	gone := newTestProduct(t, "p9", "Retired", "10.00", 10, "")
	products := newProductRepo()
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(1000)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	res, err := svc.Process(context.Background(), Request{
		MemberID:  1,
		Cart:      cartWith(order.New(gone, purchaseDate, 1)),
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, []string{"p9"}, res.Missing)
}

func TestProcess_UnknownMember(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	svc := newTestService(newProductRepo(p), newMemberRepo(), &mockHistoryRepo{})

	_, err := svc.Process(context.Background(), Request{
		MemberID:  404,
		Cart:      cartWith(order.New(p, purchaseDate, 1)),
		Confirmed: true,
	})

	require.ErrorIs(t, err, member.ErrNotFound)
}

func TestProcess_RepeatedCheckoutMergesHistory(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 100, "")
	products := newProductRepo(p)
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(1000)})
	histories := &mockHistoryRepo{}
	svc := newTestService(products, members, histories)

	for range 2 {
		res, err := svc.Process(context.Background(), Request{
			MemberID:  1,
			Cart:      cartWith(order.New(p, purchaseDate, 3)),
			Confirmed: true,
		})
		require.NoError(t, err)
		require.Equal(t, StatusSettled, res.Status)
	}

	h := histories.byMember[1]
	require.Equal(t, 1, h.Len())
	for o := range h.Orders() {
		assert.Equal(t, 6, o.Quantity)
		assertDecimal(t, "60.00", o.TotalCost)
	}
	assert.Equal(t, 94, products.byID["p1"].Stock)
	assertDecimal(t, "931", members.byID[1].Balance)
}

func TestProcess_CartLeftUntouched(t *testing.T) {
	p := newTestProduct(t, "p1", "Widget", "10.00", 10, "")
	members := newMemberRepo(member.Member{ID: 1, Name: "Ada", Balance: decimal.NewFromInt(100)})
	svc := newTestService(newProductRepo(p), members, &mockHistoryRepo{})

	c := cartWith(order.New(p, purchaseDate, 2))
	res, err := svc.Process(context.Background(), Request{MemberID: 1, Cart: c, Confirmed: true})

	require.NoError(t, err)
	assert.Equal(t, StatusSettled, res.Status)
	assert.Equal(t, 1, c.Size())
}
