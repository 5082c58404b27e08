package repository_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"ordercore/internal/config"
	"ordercore/internal/domain/model"
	"ordercore/internal/infra/db"
	gormrepo "ordercore/internal/infra/repository"
	repo "ordercore/internal/repository"
	"ordercore/internal/usecase"
	"ordercore/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// ORDERCORE_INTEGRATION=1 のときだけ postgres コンテナを立てる
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("ORDERCORE_INTEGRATION") != "1" {
		t.Skip("set ORDERCORE_INTEGRATION=1 to run postgres tests")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "app",
				"POSTGRES_PASSWORD": "app",
				"POSTGRES_DB":       "ordercore",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := db.Connect(config.DatabaseConfig{
		DSN:             fmt.Sprintf("host=%s port=%s user=app password=app dbname=ordercore sslmode=disable", host, port.Port()),
		MaxOpenConns:    30,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Minute,
	}, log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

type pgFixture struct {
	catalog *gormrepo.CatalogGormRepository
	tx      *gormrepo.TxManagerGorm
	orders  *usecase.OrderUsecase
	admin   *usecase.AdminOrderUsecase
}

func newPGFixture(t *testing.T) *pgFixture {
	gdb := startPostgres(t)
	tx := gormrepo.NewTxManagerGorm(gdb, 2*time.Second)
	return &pgFixture{
		catalog: gormrepo.NewCatalogGormRepository(gdb),
		tx:      tx,
		orders: usecase.NewOrderUsecase(tx, validator.NewOrderValidator(), nil, usecase.CheckoutOptions{
			MaxAttempts:  5,
			RetryBackoff: 5 * time.Millisecond,
		}),
		admin: usecase.NewAdminOrderUsecase(tx, nil, nil),
	}
}

func (f *pgFixture) cart(t *testing.T, userID int64, productID, qty int64) {
	t.Helper()
	ctx := context.Background()
	c, err := f.catalog.EnsureCart(ctx, userID)
	require.NoError(t, err)
	_, err = f.catalog.AddCartItem(ctx, c.ID, productID, qty)
	require.NoError(t, err)
}

func input() usecase.PlaceOrderInput {
	return usecase.PlaceOrderInput{ShippingAddress: model.ShippingAddress{
		FullName: "Sato Hanako",
		Phone:    "09012345678",
		Address:  "4-5-6 Umeda",
		City:     "Osaka",
	}}
}

func TestPostgres_ConcurrentCheckoutNeverOversells(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	p, err := f.catalog.CreateProduct(ctx, model.Product{Name: "Limited", Price: decimal.RequireFromString("9.99"), Stock: 5})
	require.NoError(t, err)

	const buyers = 15
	for u := int64(1); u <= buyers; u++ {
		f.cart(t, u, p.ID, 1)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string]bool{}
		fails []string
	)
	for u := int64(1); u <= buyers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			res, err := f.orders.PlaceOrder(ctx, userID, input())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if he, ok := usecase.AsHTTPError(err); ok {
					fails = append(fails, he.Code)
				} else {
					fails = append(fails, err.Error())
				}
				return
			}
			codes[res.Order.OrderCode] = true
		}(u)
	}
	wg.Wait()

	assert.Len(t, codes, 5)
	for _, code := range fails {
		assert.Equal(t, usecase.CodeOutOfStock, code)
	}

	got, err := f.catalog.FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock)
}

func TestPostgres_CancelRestoresAndOutboxDrains(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	p, err := f.catalog.CreateProduct(ctx, model.Product{Name: "Mug", Price: decimal.RequireFromString("12.00"), Stock: 10})
	require.NoError(t, err)
	f.cart(t, 1, p.ID, 4)

	in := input()
	in.IdempotencyKey = "pg-key"
	res, err := f.orders.PlaceOrder(ctx, 1, in)
	require.NoError(t, err)
	again, err := f.orders.PlaceOrder(ctx, 1, in)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Order.ID, again.Order.ID)

	_, err = f.orders.CancelMyOrder(ctx, 1, res.Order.ID)
	require.NoError(t, err)
	got, err := f.catalog.FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Stock)

	var pending []model.OutboxEvent
	err = f.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		pending, err = r.Outbox().FetchPending(ctx, 10)
		return err
	})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, model.EventOrderStatusChanged, pending[1].EventType)

	stats, err := f.admin.Stats(ctx, usecase.OrderStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus[model.OrderStatusCancelled])
	assert.True(t, stats.CompletedRevenue.IsZero())
}
