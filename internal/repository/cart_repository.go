package repository

import (
	"context"

	"ordercore/internal/domain/model"
)

// カートの読み取りと、注文確定時の明細削除だけを持つ。
type CartRepository interface {
	// カート行を排他ロックして読む。同じカートの二重確定はここで直列になる。
	LockByUserID(ctx context.Context, userID int64) (model.Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]model.CartItem, error)
	ClearItems(ctx context.Context, cartID int64) error
}
