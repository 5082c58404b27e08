package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
)

func sortByID[T any](rows []T, id func(T) int64) {
	sort.Slice(rows, func(i, j int) bool { return id(rows[i]) < id(rows[j]) })
}

// ---- inventory ----

type inventoryRepo struct {
	s *Store
	t *tx
}

func (r *inventoryRepo) LockProduct(ctx context.Context, productID int64) (model.Product, error) {
	if err := r.s.lock(ctx, r.t, productKey(productID)); err != nil {
		return model.Product{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.productView(productID, r.t)
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *inventoryRepo) AdjustStock(ctx context.Context, productID int64, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok || p.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("memory: stock of product %d would become negative", productID)
	}
	r.s.keep(r.t, productKey(productID), p)
	p.Stock += delta
	p.UpdatedAt = r.s.now()
	r.s.products[productID] = p

	r.s.onRollback(r.t, func() {
		p := r.s.products[productID]
		p.Stock -= delta
		r.s.products[productID] = p
	})
	return nil
}

func (r *inventoryRepo) RecordAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	adj.ID = r.s.nextID("inventory_adjustments")
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = r.s.now()
	}
	r.s.adjustments[adj.ID] = adj
	r.s.own(r.t, adjustmentKey(adj.ID))

	r.s.onRollback(r.t, func() { delete(r.s.adjustments, adj.ID) })
	return nil
}

// ---- cart ----

type cartRepo struct {
	s *Store
	t *tx
}

func (r *cartRepo) LockByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	cart, ok := r.s.findCart(userID)
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	if err := r.s.lock(ctx, r.t, cartKey(cart.ID)); err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (s *Store) findCart(userID int64) (model.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.UserID == userID {
			return c, true
		}
	}
	return model.Cart{}, false
}

func (r *cartRepo) ListItems(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := []model.CartItem{}
	for _, it := range r.s.cartItems {
		if it.CartID == cartID {
			items = append(items, it)
		}
	}
	//他のトランザクションが消したがまだ確定していない行
	for key, sh := range r.s.shadows {
		it, ok := sh.row.(model.CartItem)
		if !ok || it.CartID != cartID {
			continue
		}
		if _, live := r.s.cartItems[it.ID]; live {
			continue
		}
		if _, ok := r.s.committed(key, r.t); ok {
			items = append(items, it)
		}
	}
	sortByID(items, func(it model.CartItem) int64 { return it.ID })
	return items, nil
}

func (r *cartRepo) ClearItems(ctx context.Context, cartID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, it := range r.s.cartItems {
		if it.CartID != cartID {
			continue
		}
		removed := it
		r.s.keep(r.t, cartItemKey(id), removed)
		delete(r.s.cartItems, id)
		r.s.onRollback(r.t, func() { r.s.cartItems[removed.ID] = removed })
	}
	return nil
}

// ---- orders ----

type orderRepo struct {
	s *Store
	t *tx
}

func (r *orderRepo) Create(ctx context.Context, order model.Order) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	//一意制約（未コミットの行も含めて見る）
	for _, o := range r.s.orders {
		if o.OrderCode == order.OrderCode {
			return model.Order{}, fmt.Errorf("%w: %s", repo.ErrOrderCodeConflict, order.OrderCode)
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil &&
			o.UserID == order.UserID && *o.IdempotencyKey == *order.IdempotencyKey {
			return model.Order{}, fmt.Errorf("%w: user %d", repo.ErrIdempotencyConflict, order.UserID)
		}
	}

	order.ID = r.s.nextID("orders")
	now := r.s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	r.s.orders[order.ID] = order
	r.s.own(r.t, orderKey(order.ID))

	id := order.ID
	r.s.onRollback(r.t, func() { delete(r.s.orders, id) })
	return order, nil
}

func (r *orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orderView(orderID, r.t)
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *orderRepo) LockByID(ctx context.Context, orderID int64) (model.Order, error) {
	if err := r.s.lock(ctx, r.t, orderKey(orderID)); err != nil {
		return model.Order{}, err
	}
	return r.FindByID(ctx, orderID)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus, payment model.PaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || !r.s.visible(orderKey(orderID), r.t) {
		return repo.ErrNotFound
	}
	if o.OrderStatus != from {
		return repo.ErrStatusConflict
	}

	prev := o
	r.s.keep(r.t, orderKey(orderID), prev)
	o.OrderStatus = to
	o.PaymentStatus = payment
	o.UpdatedAt = r.s.now()
	r.s.orders[orderID] = o

	r.s.onRollback(r.t, func() {
		cur := r.s.orders[orderID]
		cur.OrderStatus = prev.OrderStatus
		cur.PaymentStatus = prev.PaymentStatus
		cur.UpdatedAt = prev.UpdatedAt
		r.s.orders[orderID] = cur
	})
	return nil
}

func (r *orderRepo) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, o := range r.s.orders {
		if o.UserID != userID || o.IdempotencyKey == nil || *o.IdempotencyKey != key {
			continue
		}
		view, ok := r.s.orderView(id, r.t)
		if !ok {
			continue
		}
		return view, true, nil
	}
	return model.Order{}, false, nil
}

// s.mu を持った状態で呼ぶ。新しい順。
func (r *orderRepo) selectOrders(match func(o model.Order) bool) []model.Order {
	out := []model.Order{}
	for id := range r.s.orders {
		o, ok := r.s.orderView(id, r.t)
		if !ok || !match(o) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func paginate(rows []model.Order, page, limit int) []model.Order {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return []model.Order{}
	}
	start := (page - 1) * limit
	if start >= len(rows) {
		return []model.Order{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func createdBetween(o model.Order, from, to *time.Time) bool {
	if from != nil && o.CreatedAt.Before(*from) {
		return false
	}
	if to != nil && !o.CreatedAt.Before(*to) {
		return false
	}
	return true
}

func (r *orderRepo) ListByUserID(ctx context.Context, f repo.UserOrderListFilter) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.selectOrders(func(o model.Order) bool {
		if o.UserID != f.UserID {
			return false
		}
		return f.Status == nil || o.OrderStatus == *f.Status
	})
	return paginate(rows, f.Page, f.Limit), int64(len(rows)), nil
}

func (r *orderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.selectOrders(func(o model.Order) bool {
		if f.Status != nil && o.OrderStatus != *f.Status {
			return false
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			return false
		}
		return createdBetween(o, f.From, f.To)
	})
	return paginate(rows, f.Page, f.Limit), int64(len(rows)), nil
}

func truncate(t time.Time, bucket repo.StatsBucket) time.Time {
	t = t.UTC()
	if bucket == repo.StatsBucketMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *orderRepo) Stats(ctx context.Context, f repo.OrderStatsFilter) (repo.OrderStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := repo.OrderStats{
		ByStatus:         make(map[model.OrderStatus]int64, len(model.OrderStatuses)),
		CompletedRevenue: decimal.Zero,
		Revenue:          []repo.RevenueBucket{},
	}
	for _, s := range model.OrderStatuses {
		stats.ByStatus[s] = 0
	}

	buckets := map[time.Time]*repo.RevenueBucket{}
	rows := r.selectOrders(func(o model.Order) bool { return createdBetween(o, f.From, f.To) })
	for _, o := range rows {
		stats.TotalOrders++
		stats.ByStatus[o.OrderStatus]++
		if o.OrderStatus != model.OrderStatusCompleted {
			continue
		}
		stats.CompletedRevenue = stats.CompletedRevenue.Add(o.TotalAmount)

		period := truncate(o.CreatedAt, f.Bucket)
		b, ok := buckets[period]
		if !ok {
			b = &repo.RevenueBucket{Period: period, Revenue: decimal.Zero}
			buckets[period] = b
		}
		b.Orders++
		b.Revenue = b.Revenue.Add(o.TotalAmount)
	}

	for _, b := range buckets {
		stats.Revenue = append(stats.Revenue, *b)
	}
	sort.Slice(stats.Revenue, func(i, j int) bool {
		return stats.Revenue[i].Period.Before(stats.Revenue[j].Period)
	})
	return stats, nil
}

// ---- order items ----

type orderItemRepo struct {
	s *Store
	t *tx
}

func (r *orderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	created := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		it.ID = r.s.nextID("order_items")
		it.OrderID = orderID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = r.s.now()
		}
		r.s.orderItems[it.ID] = it
		r.s.own(r.t, orderItemKey(it.ID))
		id := it.ID
		r.s.onRollback(r.t, func() { delete(r.s.orderItems, id) })
		created = append(created, it)
	}
	return created, nil
}

func (r *orderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := []model.OrderItem{}
	for _, it := range r.s.orderItems {
		if it.OrderID == orderID && r.s.visible(orderItemKey(it.ID), r.t) {
			items = append(items, it)
		}
	}
	sortByID(items, func(it model.OrderItem) int64 { return it.ID })
	return items, nil
}

// ---- status history ----

type historyRepo struct {
	s *Store
	t *tx
}

func (r *historyRepo) Create(ctx context.Context, h model.OrderStatusHistory) (model.OrderStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h.ID = r.s.nextID("order_status_history")
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.s.now()
	}
	r.s.history[h.ID] = h
	r.s.own(r.t, historyKey(h.ID))
	id := h.ID
	r.s.onRollback(r.t, func() { delete(r.s.history, id) })
	return h, nil
}

func (r *historyRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := []model.OrderStatusHistory{}
	for _, h := range r.s.history {
		if h.OrderID == orderID && r.s.visible(historyKey(h.ID), r.t) {
			rows = append(rows, h)
		}
	}
	sortByID(rows, func(h model.OrderStatusHistory) int64 { return h.ID })
	return rows, nil
}

// ---- order code ----

type orderCodeRepo struct {
	s *Store
	t *tx
}

func (r *orderCodeRepo) NextSequence(ctx context.Context, day string, dayStart, dayEnd time.Time) (int64, error) {
	if err := r.s.lock(ctx, r.t, orderCodeKey(day)); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, exists := r.s.codeSeqs[day]
	next := prev + 1
	if !exists {
		//その日の初回だけ件数から始める
		var n int64
		for _, o := range r.s.orders {
			if r.s.visible(orderKey(o.ID), nil) && !o.CreatedAt.Before(dayStart) && o.CreatedAt.Before(dayEnd) {
				n++
			}
		}
		next = n + 1
	}
	r.s.codeSeqs[day] = next

	r.s.onRollback(r.t, func() {
		if exists {
			r.s.codeSeqs[day] = prev
		} else {
			delete(r.s.codeSeqs, day)
		}
	})
	return next, nil
}

// ---- outbox ----

type outboxRepo struct {
	s *Store
	t *tx
}

func (r *outboxRepo) Enqueue(ctx context.Context, evt model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	evt.ID = r.s.nextID("outbox_events")
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = r.s.now()
	}
	r.s.outbox[evt.ID] = evt
	r.s.own(r.t, outboxKey(evt.ID))
	id := evt.ID
	r.s.onRollback(r.t, func() { delete(r.s.outbox, id) })
	return nil
}

func (r *outboxRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if r.t == nil {
		return nil, fmt.Errorf("memory: fetch outbox outside transaction")
	}

	r.s.mu.Lock()
	pending := []model.OutboxEvent{}
	for id, e := range r.s.outbox {
		if !r.s.visible(outboxKey(id), r.t) {
			continue
		}
		if row, ok := r.s.committed(outboxKey(id), r.t); ok {
			e = row.(model.OutboxEvent)
		}
		if e.SentAt == nil {
			pending = append(pending, e)
		}
	}
	r.s.mu.Unlock()
	sortByID(pending, func(e model.OutboxEvent) int64 { return e.ID })

	//他のリレーが握っている行は飛ばす
	out := []model.OutboxEvent{}
	for _, e := range pending {
		if len(out) >= limit {
			break
		}
		if !r.s.tryLock(r.t, outboxKey(e.ID)) {
			continue
		}
		//ロックを取るまでの間に送信済みになっていないか
		r.s.mu.Lock()
		cur := r.s.outbox[e.ID]
		r.s.mu.Unlock()
		if cur.SentAt == nil {
			out = append(out, cur)
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return repo.ErrNotFound
	}
	prev := e.SentAt
	r.s.keep(r.t, outboxKey(id), e)
	e.SentAt = &sentAt
	r.s.outbox[id] = e
	r.s.onRollback(r.t, func() {
		cur := r.s.outbox[id]
		cur.SentAt = prev
		r.s.outbox[id] = cur
	})
	return nil
}
