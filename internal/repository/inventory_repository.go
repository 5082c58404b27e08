package repository

import (
	"context"

	"ordercore/internal/domain/model"
)

// 在庫台帳。stockの変更は必ずロックを取った同じトランザクション内で行う。
type InventoryRepository interface {
	// 商品行を排他ロックして読む（トランザクション終了まで保持）
	LockProduct(ctx context.Context, productID int64) (model.Product, error)

	// stock = stock + delta をDB側で計算して更新
	AdjustStock(ctx context.Context, productID int64, delta int64) error

	// 増減履歴の作成
	RecordAdjustment(ctx context.Context, adj model.InventoryAdjustment) error
}
