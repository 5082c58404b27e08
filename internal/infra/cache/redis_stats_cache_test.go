package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"ordercore/internal/config"
	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ORDERCORE_INTEGRATION=1 のときだけ redis コンテナを立てる
func startRedis(t *testing.T) string {
	t.Helper()
	if os.Getenv("ORDERCORE_INTEGRATION") != "1" {
		t.Skip("set ORDERCORE_INTEGRATION=1 to run redis tests")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}

func TestRedisStatsCache_SetGetInvalidate(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisStatsCache(rdb, time.Minute)
	f := repo.OrderStatsFilter{Bucket: repo.StatsBucketDay}

	_, ok, err := c.Get(ctx, f)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := repo.OrderStats{
		TotalOrders:      3,
		ByStatus:         map[model.OrderStatus]int64{model.OrderStatusCompleted: 2, model.OrderStatusPending: 1},
		CompletedRevenue: decimal.RequireFromString("120.50"),
		Revenue:          []repo.RevenueBucket{},
	}
	require.NoError(t, c.Set(ctx, f, stats))

	got, ok, err := c.Get(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.TotalOrders)
	assert.True(t, got.CompletedRevenue.Equal(stats.CompletedRevenue))

	// 別の条件は別キー
	_, ok, err = c.Get(ctx, repo.OrderStatsFilter{Bucket: repo.StatsBucketMonth})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx, f)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisClient_UnreachableFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := NewRedisClient(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
