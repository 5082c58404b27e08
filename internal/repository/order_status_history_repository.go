package repository

import (
	"context"

	"ordercore/internal/domain/model"
)

// ステータス履歴の保存・取得の約束。
type OrderStatusHistoryRepository interface {
	//1件追記
	Create(ctx context.Context, h model.OrderStatusHistory) (model.OrderStatusHistory, error)

	//注文の履歴を古い順で返す
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error)
}
