package repository

import (
	"context"

	"ordercore/internal/domain/model"
)

// 商品とカートの書き込み。
// カタログ・カートの管理はこのサービスの外側なので、初期データ投入と検証用途に限る。
type CatalogRepository interface {
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	FindProduct(ctx context.Context, id int64) (model.Product, error)

	// 名前と価格だけ更新（在庫は InventoryRepository 経由）
	UpdateProduct(ctx context.Context, p model.Product) error
	SoftDeleteProduct(ctx context.Context, id int64) error

	// ユーザーのカートが無ければ作る
	EnsureCart(ctx context.Context, userID int64) (model.Cart, error)
	AddCartItem(ctx context.Context, cartID, productID, quantity int64) (model.CartItem, error)
}
