// Package memory はプロセス内で完結するストア。
// 行ロック（待ち時間の上限つき）とundoログによるロールバックを持ち、
// Postgres 無しでも注文コアの排他・原子性が同じように振る舞う。
// 未コミットの書き込みは書いたトランザクションにしか見えない。
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"
)

type Store struct {
	mu sync.Mutex

	products    map[int64]model.Product
	carts       map[int64]model.Cart
	cartItems   map[int64]model.CartItem
	orders      map[int64]model.Order
	orderItems  map[int64]model.OrderItem
	history     map[int64]model.OrderStatusHistory
	adjustments map[int64]model.InventoryAdjustment
	outbox      map[int64]model.OutboxEvent
	codeSeqs    map[string]int64

	// テーブルごとの採番
	ids map[string]int64

	// 未コミットの行 -> 書いたトランザクション
	owners map[string]*tx
	// 書き換え中の行の確定済みの値。書いたトランザクション以外にはこちらを見せる。
	shadows map[string]shadow

	rowLocks    map[string]chan struct{}
	lockTimeout time.Duration
	now         func() time.Time
}

// lockTimeout <= 0 のときはロック待ちに上限を設けない
func New(lockTimeout time.Duration) *Store {
	return &Store{
		products:    map[int64]model.Product{},
		carts:       map[int64]model.Cart{},
		cartItems:   map[int64]model.CartItem{},
		orders:      map[int64]model.Order{},
		orderItems:  map[int64]model.OrderItem{},
		history:     map[int64]model.OrderStatusHistory{},
		adjustments: map[int64]model.InventoryAdjustment{},
		outbox:      map[int64]model.OutboxEvent{},
		codeSeqs:    map[string]int64{},
		ids:         map[string]int64{},
		owners:      map[string]*tx{},
		shadows:     map[string]shadow{},
		rowLocks:    map[string]chan struct{}{},
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// 時刻の差し替え（テスト用）
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

type tx struct {
	held  map[string]chan struct{}
	undo  []func()
	owned []string
	kept  []string
}

type shadow struct {
	t   *tx
	row any
}

// s.mu を持った状態で呼ぶ
func (s *Store) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

// s.mu を持った状態で呼ぶ
func (s *Store) visible(key string, t *tx) bool {
	owner, ok := s.owners[key]
	return !ok || owner == t
}

// s.mu を持った状態で呼ぶ。トランザクション外の書き込みは即確定。
func (s *Store) onRollback(t *tx, fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}

// s.mu を持った状態で呼ぶ
func (s *Store) own(t *tx, key string) {
	if t == nil {
		return
	}
	s.owners[key] = t
	t.owned = append(t.owned, key)
}

// s.mu を持った状態で呼ぶ。行を書き換える前に確定済みの値を退避する。
// 自分が作った行と、既に退避済みの行は対象外。
func (s *Store) keep(t *tx, key string, row any) {
	if t == nil {
		return
	}
	if owner, ok := s.owners[key]; ok && owner == t {
		return
	}
	if _, ok := s.shadows[key]; ok {
		return
	}
	s.shadows[key] = shadow{t: t, row: row}
	t.kept = append(t.kept, key)
}

// s.mu を持った状態で呼ぶ。他のトランザクションが書き換え中なら確定済みの値を返す。
func (s *Store) committed(key string, t *tx) (any, bool) {
	sh, ok := s.shadows[key]
	if !ok || sh.t == t {
		return nil, false
	}
	return sh.row, true
}

// s.mu を持った状態で呼ぶ。確定済みの書き込みを退避中の値にも反映する。
func (s *Store) patchShadow(key string, fn func(row any) any) {
	if sh, ok := s.shadows[key]; ok {
		sh.row = fn(sh.row)
		s.shadows[key] = sh
	}
}

// s.mu を持った状態で呼ぶ
func (s *Store) productView(id int64, t *tx) (model.Product, bool) {
	if row, ok := s.committed(productKey(id), t); ok {
		return row.(model.Product), true
	}
	p, ok := s.products[id]
	return p, ok
}

// s.mu を持った状態で呼ぶ
func (s *Store) orderView(id int64, t *tx) (model.Order, bool) {
	if !s.visible(orderKey(id), t) {
		return model.Order{}, false
	}
	if row, ok := s.committed(orderKey(id), t); ok {
		return row.(model.Order), true
	}
	o, ok := s.orders[id]
	return o, ok
}

func (s *Store) rowLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[key] = ch
	}
	return ch
}

// 行ロックを取る。同じトランザクション内では再入可能。
func (s *Store) lock(ctx context.Context, t *tx, key string) error {
	if t == nil {
		return fmt.Errorf("memory: lock %s outside transaction", key)
	}
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := s.rowLock(key)

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-timeout:
		return fmt.Errorf("%w: %s", repo.ErrLockTimeout, key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// 取れなければ待たずに false
func (s *Store) tryLock(t *tx, key string) bool {
	if _, ok := t.held[key]; ok {
		return true
	}
	ch := s.rowLock(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return true
	default:
		return false
	}
}

func (s *Store) finish(t *tx, commit bool) {
	s.mu.Lock()
	if !commit {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	for _, key := range t.owned {
		if s.owners[key] == t {
			delete(s.owners, key)
		}
	}
	for _, key := range t.kept {
		if s.shadows[key].t == t {
			delete(s.shadows, key)
		}
	}
	s.mu.Unlock()

	for _, ch := range t.held {
		<-ch
	}
	t.held = nil
	t.undo = nil
	t.kept = nil
}

// fnがエラーを返すかpanicしたら全ての書き込みを戻してロックを解放する
func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	t := &tx{held: map[string]chan struct{}{}}

	committed := false
	defer func() {
		if !committed {
			s.finish(t, false)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(&txRepos{s: s, t: t}); err != nil {
		return err
	}

	committed = true
	s.finish(t, true)
	return nil
}

type txRepos struct {
	s *Store
	t *tx
}

func (r *txRepos) Orders() repo.OrderRepository { return &orderRepo{s: r.s, t: r.t} }
func (r *txRepos) OrderItems() repo.OrderItemRepository {
	return &orderItemRepo{s: r.s, t: r.t}
}
func (r *txRepos) StatusHistory() repo.OrderStatusHistoryRepository {
	return &historyRepo{s: r.s, t: r.t}
}
func (r *txRepos) Carts() repo.CartRepository           { return &cartRepo{s: r.s, t: r.t} }
func (r *txRepos) Inventory() repo.InventoryRepository  { return &inventoryRepo{s: r.s, t: r.t} }
func (r *txRepos) OrderCodes() repo.OrderCodeRepository { return &orderCodeRepo{s: r.s, t: r.t} }
func (r *txRepos) Outbox() repo.OutboxRepository        { return &outboxRepo{s: r.s, t: r.t} }

// トランザクション外の読み取り用
func (s *Store) Orders() repo.OrderRepository                      { return &orderRepo{s: s} }
func (s *Store) OrderItems() repo.OrderItemRepository              { return &orderItemRepo{s: s} }
func (s *Store) StatusHistory() repo.OrderStatusHistoryRepository { return &historyRepo{s: s} }
func (s *Store) Catalog() repo.CatalogRepository                   { return &catalogRepo{s: s} }

// 商品ごとの在庫増減履歴（ID順）
func (s *Store) StockMovements(productID int64) []model.InventoryAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.InventoryAdjustment{}
	for _, a := range s.adjustments {
		if a.ProductID == productID && s.visible(adjustmentKey(a.ID), nil) {
			out = append(out, a)
		}
	}
	sortByID(out, func(a model.InventoryAdjustment) int64 { return a.ID })
	return out
}

func orderKey(id int64) string      { return fmt.Sprintf("order:%d", id) }
func productKey(id int64) string    { return fmt.Sprintf("product:%d", id) }
func cartKey(id int64) string       { return fmt.Sprintf("cart:%d", id) }
func outboxKey(id int64) string     { return fmt.Sprintf("outbox:%d", id) }
func adjustmentKey(id int64) string { return fmt.Sprintf("adjustment:%d", id) }
func cartItemKey(id int64) string   { return fmt.Sprintf("cart_item:%d", id) }
func orderItemKey(id int64) string  { return fmt.Sprintf("order_item:%d", id) }
func historyKey(id int64) string    { return fmt.Sprintf("history:%d", id) }
func orderCodeKey(day string) string {
	return "order_code:" + day
}
