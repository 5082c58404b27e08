package repository

import (
	"context"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// SELECT ... FOR UPDATE で商品行を押さえる
func (r *InventoryGormRepository) LockProduct(ctx context.Context, productID int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		First(&p).Error
	if err != nil {
		return model.Product{}, translateError(err)
	}
	return p, nil
}

// 相対更新（stock = stock + delta）
func (r *InventoryGormRepository) AdjustStock(ctx context.Context, productID int64, delta int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", delta))

	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 増減履歴作成
func (r *InventoryGormRepository) RecordAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return translateError(err)
	}
	return nil
}
