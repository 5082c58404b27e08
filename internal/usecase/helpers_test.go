package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ordercore/internal/domain/model"
	"ordercore/internal/infra/memory"
	repo "ordercore/internal/repository"
	"ordercore/internal/usecase"
	"ordercore/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// =====================
// memory store を使った fixture
// =====================

type fixture struct {
	store  *memory.Store
	orders *usecase.OrderUsecase
	admin  *usecase.AdminOrderUsecase

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.New(2 * time.Second),
		now:   time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}
	f.store.SetClock(f.clock)
	f.orders = usecase.NewOrderUsecase(f.store, validator.NewOrderValidator(), nil, usecase.CheckoutOptions{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		Now:          f.clock,
	})
	f.admin = usecase.NewAdminOrderUsecase(f.store, nil, f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) product(t *testing.T, name, price string, stock int64) model.Product {
	t.Helper()
	p, err := f.store.Catalog().CreateProduct(context.Background(), model.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

// lines: {productID, quantity}
func (f *fixture) cart(t *testing.T, userID int64, lines ...[2]int64) model.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.store.Catalog().EnsureCart(ctx, userID)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := f.store.Catalog().AddCartItem(ctx, c.ID, l[0], l[1])
		require.NoError(t, err)
	}
	return c
}

func (f *fixture) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := f.store.Catalog().FindProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) cartItems(t *testing.T, userID int64) []model.CartItem {
	t.Helper()
	var items []model.CartItem
	err := f.store.WithinTx(context.Background(), func(r repo.TxRepos) error {
		c, err := r.Carts().LockByUserID(context.Background(), userID)
		if err != nil {
			return err
		}
		items, err = r.Carts().ListItems(context.Background(), c.ID)
		return err
	})
	require.NoError(t, err)
	return items
}

func (f *fixture) totalOrders(t *testing.T) int64 {
	t.Helper()
	out, err := f.admin.List(context.Background(), usecase.AdminListOrdersInput{Page: 1, Limit: 100})
	require.NoError(t, err)
	return out.Meta.Total
}

func (f *fixture) place(t *testing.T, userID int64) usecase.OrderOutput {
	t.Helper()
	res, err := f.orders.PlaceOrder(context.Background(), userID, placeInput())
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Order
}

func placeInput() usecase.PlaceOrderInput {
	return usecase.PlaceOrderInput{
		ShippingAddress: model.ShippingAddress{
			FullName: "Sato Hanako",
			Phone:    "09012345678",
			Address:  "4-5-6 Umeda",
			City:     "Osaka",
		},
	}
}

func requireHTTPError(t *testing.T, err error, status int, code string) *usecase.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "want HTTPError, got %v", err)
	require.Equal(t, status, he.Status, he.Message)
	require.Equal(t, code, he.Code)
	return he
}
