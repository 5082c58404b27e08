package repository

import (
	"context"
	"fmt"
	"time"

	repo "ordercore/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	history    repo.OrderStatusHistoryRepository
	carts      repo.CartRepository
	inventory  repo.InventoryRepository
	orderCodes repo.OrderCodeRepository
	outbox     repo.OutboxRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository                      { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository              { return r.orderItems }
func (r *txReposGorm) StatusHistory() repo.OrderStatusHistoryRepository { return r.history }
func (r *txReposGorm) Carts() repo.CartRepository                        { return r.carts }
func (r *txReposGorm) Inventory() repo.InventoryRepository               { return r.inventory }
func (r *txReposGorm) OrderCodes() repo.OrderCodeRepository              { return r.orderCodes }
func (r *txReposGorm) Outbox() repo.OutboxRepository                     { return r.outbox }

type TxManagerGorm struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewTxManagerGorm(db *gorm.DB, lockTimeout time.Duration) *TxManagerGorm {
	return &TxManagerGorm{db: db, lockTimeout: lockTimeout}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//ロック待ちの上限はこのトランザクションだけに効かせる
		if tm.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", tm.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:     NewOrderGormRepository(tx),
			orderItems: NewOrderItemGormRepository(tx),
			history:    NewOrderStatusHistoryGormRepository(tx),
			carts:      NewCartGormRepository(tx),
			inventory:  NewInventoryGormRepository(tx),
			orderCodes: NewOrderCodeGormRepository(tx),
			outbox:     NewOutboxGormRepository(tx),
		}
		return fn(r)
	})
	return translateError(err)
}
