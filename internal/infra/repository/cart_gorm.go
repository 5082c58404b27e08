package repository

import (
	"context"

	"ordercore/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// ユーザーのカートをロック付きで取得
func (r *CartGormRepository) LockByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return model.Cart{}, translateError(err)
	}
	return cart, nil
}

// カート明細を一覧取得
func (r *CartGormRepository) ListItems(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, translateError(err)
	}
	return items, nil
}

// 指定カートの明細を全削除
func (r *CartGormRepository) ClearItems(ctx context.Context, cartID int64) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&model.CartItem{}).Error; err != nil {
		return translateError(err)
	}
	return nil
}
