package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	StatusHistory() OrderStatusHistoryRepository
	Carts() CartRepository
	Inventory() InventoryRepository
	OrderCodes() OrderCodeRepository
	Outbox() OutboxRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
// fnがエラーを返すかpanicしたらrollbackする。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
