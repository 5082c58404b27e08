package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *Store, stock int64) model.Product {
	t.Helper()
	p, err := s.Catalog().CreateProduct(context.Background(), model.Product{
		Name:  "P",
		Price: decimal.NewFromInt(10),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func TestWithinTx_ErrorRollsBackWrites(t *testing.T) {
	s := New(time.Second)
	p := seedProduct(t, s, 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		require.NoError(t, r.Inventory().AdjustStock(ctx, p.ID, -3))
		_, err := r.Orders().Create(ctx, model.Order{OrderCode: "ORD-1", UserID: 1})
		require.NoError(t, err)
		require.NoError(t, r.Outbox().Enqueue(ctx, model.OutboxEvent{EventType: model.EventOrderCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Catalog().FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Stock)
	assert.Empty(t, s.orders)
	assert.Empty(t, s.outbox)
}

func TestWithinTx_PanicRollsBackAndReleasesLocks(t *testing.T) {
	s := New(50 * time.Millisecond)
	p := seedProduct(t, s, 5)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
			_, err := r.Inventory().LockProduct(ctx, p.ID)
			require.NoError(t, err)
			require.NoError(t, r.Inventory().AdjustStock(ctx, p.ID, -5))
			panic("crash")
		})
	})

	// ロックが残っていれば待たされてタイムアウトする
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		got, err := r.Inventory().LockProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(5), got.Stock)
		return nil
	})
	require.NoError(t, err)
}

func TestLock_TimesOutWhileHeld(t *testing.T) {
	s := New(30 * time.Millisecond)
	p := seedProduct(t, s, 1)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r repo.TxRepos) error {
			if _, err := r.Inventory().LockProduct(ctx, p.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Inventory().LockProduct(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, repo.ErrLockTimeout)
	assert.True(t, repo.IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
}

func TestLock_ReentrantWithinTx(t *testing.T) {
	s := New(30 * time.Millisecond)
	p := seedProduct(t, s, 1)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		for i := 0; i < 3; i++ {
			if _, err := r.Inventory().LockProduct(ctx, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestLock_ContextCancelled(t *testing.T) {
	s := New(0)
	p := seedProduct(t, s, 1)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithinTx(context.Background(), func(r repo.TxRepos) error {
			_, _ = r.Inventory().LockProduct(context.Background(), p.ID)
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Inventory().LockProduct(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrders_UncommittedRowsInvisibleToOtherTx(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()

	created := make(chan int64)
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().Create(ctx, model.Order{OrderCode: "ORD-A", UserID: 1})
			if err != nil {
				return err
			}
			created <- o.ID
			<-release
			return nil
		})
	}()
	id := <-created

	_, err := s.Orders().FindByID(ctx, id)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// 一意制約は未コミットでも効く
	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Orders().Create(ctx, model.Order{OrderCode: "ORD-A", UserID: 2})
		return err
	})
	assert.ErrorIs(t, err, repo.ErrOrderCodeConflict)

	close(release)
	require.NoError(t, <-done)

	got, err := s.Orders().FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ORD-A", got.OrderCode)
}

func TestOrders_IdempotencyKeyUniquePerUser(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	key := "k1"

	create := func(code string, userID int64) error {
		return s.WithinTx(ctx, func(r repo.TxRepos) error {
			_, err := r.Orders().Create(ctx, model.Order{OrderCode: code, UserID: userID, IdempotencyKey: &key})
			return err
		})
	}
	require.NoError(t, create("ORD-1", 1))
	assert.ErrorIs(t, create("ORD-2", 1), repo.ErrIdempotencyConflict)
	require.NoError(t, create("ORD-3", 2))
}

func TestNextSequence_SeedsFromExistingOrders(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	dayStart := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return dayStart.Add(time.Hour) })

	// カウンタ無しで既に2件ある日
	for _, code := range []string{"ORD-20261016-0001", "ORD-20261016-0002"} {
		err := s.WithinTx(ctx, func(r repo.TxRepos) error {
			_, err := r.Orders().Create(ctx, model.Order{OrderCode: code, UserID: 1})
			return err
		})
		require.NoError(t, err)
	}

	var seqs []int64
	for i := 0; i < 2; i++ {
		err := s.WithinTx(ctx, func(r repo.TxRepos) error {
			n, err := r.OrderCodes().NextSequence(ctx, "20261016", dayStart, dayStart.AddDate(0, 0, 1))
			seqs = append(seqs, n)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{3, 4}, seqs)

	// ロールバックした採番は戻る
	_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, _ = r.OrderCodes().NextSequence(ctx, "20261016", dayStart, dayStart.AddDate(0, 0, 1))
		return errors.New("abort")
	})
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		n, err := r.OrderCodes().NextSequence(ctx, "20261016", dayStart, dayStart.AddDate(0, 0, 1))
		assert.Equal(t, int64(5), n)
		return err
	})
	require.NoError(t, err)
}

func TestOutbox_FetchPendingSkipsLockedRows(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := s.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Outbox().Enqueue(ctx, model.OutboxEvent{EventType: model.EventOrderCreated, AggregateID: int64(i + 1)})
		})
		require.NoError(t, err)
	}

	first := make(chan []model.OutboxEvent)
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r repo.TxRepos) error {
			evts, err := r.Outbox().FetchPending(ctx, 2)
			if err != nil {
				return err
			}
			first <- evts
			<-release
			for _, e := range evts {
				if err := r.Outbox().MarkSent(ctx, e.ID, time.Now()); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	a := <-first
	require.Len(t, a, 2)

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		b, err := r.Outbox().FetchPending(ctx, 10)
		require.Len(t, b, 1)
		assert.Equal(t, int64(3), b[0].AggregateID)
		return err
	})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		rest, err := r.Outbox().FetchPending(ctx, 10)
		assert.Len(t, rest, 1)
		return err
	})
	require.NoError(t, err)
}

func TestOrders_StatsBucketsInUTC(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	jst := time.FixedZone("JST", 9*60*60)

	// JST では同じ日でも UTC では前日
	for i, at := range []time.Time{
		time.Date(2026, 10, 16, 8, 0, 0, 0, jst),
		time.Date(2026, 10, 16, 10, 0, 0, 0, jst),
	} {
		err := s.WithinTx(ctx, func(r repo.TxRepos) error {
			_, err := r.Orders().Create(ctx, model.Order{
				OrderCode:   "ORD-" + at.String(),
				UserID:      1,
				TotalAmount: decimal.NewFromInt(int64(i + 1)),
				OrderStatus: model.OrderStatusCompleted,
				CreatedAt:   at,
			})
			return err
		})
		require.NoError(t, err)
	}

	stats, err := s.Orders().Stats(ctx, repo.OrderStatsFilter{Bucket: repo.StatsBucketDay})
	require.NoError(t, err)
	require.Len(t, stats.Revenue, 2)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), stats.Revenue[0].Period)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), stats.Revenue[1].Period)
}

// =====================
// 書き換え中の行の見え方
// =====================

// pending の注文を取り消して在庫を戻す途中で止め、commit するかどうかを選ぶ
func startCancel(t *testing.T, s *Store, orderID, productID int64, commit bool) (paused <-chan struct{}, resume func() error) {
	t.Helper()
	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r repo.TxRepos) error {
			if _, err := r.Orders().LockByID(ctx, orderID); err != nil {
				return err
			}
			if _, err := r.Inventory().LockProduct(ctx, productID); err != nil {
				return err
			}
			if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusPending, model.OrderStatusCancelled, model.PaymentStatusPending); err != nil {
				return err
			}
			if err := r.Inventory().AdjustStock(ctx, productID, 4); err != nil {
				return err
			}
			if _, err := r.StatusHistory().Create(ctx, model.OrderStatusHistory{
				OrderID: orderID, FromStatus: model.OrderStatusPending, ToStatus: model.OrderStatusCancelled, ChangedBy: 1,
			}); err != nil {
				return err
			}
			close(held)
			<-release
			if !commit {
				return errors.New("abort")
			}
			return nil
		})
	}()
	return held, func() error {
		close(release)
		return <-done
	}
}

func seedPendingOrder(t *testing.T, s *Store) model.Order {
	t.Helper()
	ctx := context.Background()
	var o model.Order
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().Create(ctx, model.Order{
			OrderCode:     "ORD-20261016-0001",
			UserID:        1,
			TotalAmount:   decimal.NewFromInt(40),
			OrderStatus:   model.OrderStatusPending,
			PaymentStatus: model.PaymentStatusPending,
		})
		if err != nil {
			return err
		}
		_, err = r.StatusHistory().Create(ctx, model.OrderStatusHistory{
			OrderID: o.ID, FromStatus: model.OrderStatusPending, ToStatus: model.OrderStatusPending, ChangedBy: 1,
		})
		return err
	})
	require.NoError(t, err)
	return o
}

func assertCommittedPending(t *testing.T, s *Store, orderID, productID int64) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Orders().FindByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, got.OrderStatus)

	cancelled := model.OrderStatusCancelled
	rows, total, err := s.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 10, Status: &cancelled})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int64(0), total)

	mine, _, err := s.Orders().ListByUserID(ctx, repo.UserOrderListFilter{UserID: 1, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.OrderStatusPending, mine[0].OrderStatus)

	stats, err := s.Orders().Stats(ctx, repo.OrderStatsFilter{Bucket: repo.StatsBucketDay})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus[model.OrderStatusPending])
	assert.Equal(t, int64(0), stats.ByStatus[model.OrderStatusCancelled])

	p, err := s.Catalog().FindProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), p.Stock)

	history, err := s.StatusHistory().ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestInFlightTransition_HiddenFromOtherReaders(t *testing.T) {
	s := New(time.Second)
	p := seedProduct(t, s, 6)
	o := seedPendingOrder(t, s)

	paused, resume := startCancel(t, s, o.ID, p.ID, false)
	<-paused
	assertCommittedPending(t, s, o.ID, p.ID)

	// 別トランザクションからも確定済みの値が見える
	ctx := context.Background()
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		got, err := r.Orders().FindByID(ctx, o.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, model.OrderStatusPending, got.OrderStatus)
		return nil
	})
	require.NoError(t, err)

	require.Error(t, resume())
	assertCommittedPending(t, s, o.ID, p.ID)
}

func TestInFlightTransition_VisibleAfterCommit(t *testing.T) {
	s := New(time.Second)
	p := seedProduct(t, s, 6)
	o := seedPendingOrder(t, s)
	ctx := context.Background()

	paused, resume := startCancel(t, s, o.ID, p.ID, true)
	<-paused
	assertCommittedPending(t, s, o.ID, p.ID)
	require.NoError(t, resume())

	got, err := s.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.OrderStatus)

	stats, err := s.Orders().Stats(ctx, repo.OrderStatsFilter{Bucket: repo.StatsBucketDay})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus[model.OrderStatusCancelled])

	prod, err := s.Catalog().FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), prod.Stock)

	history, err := s.StatusHistory().ListByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Empty(t, s.shadows)
}

func TestCatalogUpdate_DuringInFlightStockChangeSurvivesRollback(t *testing.T) {
	s := New(time.Second)
	p := seedProduct(t, s, 6)
	o := seedPendingOrder(t, s)
	ctx := context.Background()

	paused, resume := startCancel(t, s, o.ID, p.ID, false)
	<-paused
	require.NoError(t, s.Catalog().UpdateProduct(ctx, model.Product{ID: p.ID, Name: "Renamed", Price: decimal.NewFromInt(12)}))

	during, err := s.Catalog().FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", during.Name)
	assert.Equal(t, int64(6), during.Stock)

	require.Error(t, resume())
	after, err := s.Catalog().FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", after.Name)
	assert.Equal(t, int64(6), after.Stock)
}

func TestCart_ClearedItemsVisibleUntilCommit(t *testing.T) {
	s := New(time.Second)
	p := seedProduct(t, s, 6)
	ctx := context.Background()
	cart, err := s.Catalog().EnsureCart(ctx, 1)
	require.NoError(t, err)
	_, err = s.Catalog().AddCartItem(ctx, cart.ID, p.ID, 2)
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r repo.TxRepos) error {
			if err := r.Carts().ClearItems(ctx, cart.ID); err != nil {
				return err
			}
			items, err := r.Carts().ListItems(ctx, cart.ID)
			if err != nil {
				return err
			}
			assert.Empty(t, items)
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.Carts().ListItems(ctx, cart.ID)
		assert.Len(t, items, 1)
		return err
	})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.Carts().ListItems(ctx, cart.ID)
		assert.Empty(t, items)
		return err
	})
	require.NoError(t, err)
}
