package repository

import (
	"context"

	"ordercore/internal/domain/model"

	"gorm.io/gorm"
)

type orderStatusHistoryGormRepository struct {
	db *gorm.DB
}

func NewOrderStatusHistoryGormRepository(db *gorm.DB) *orderStatusHistoryGormRepository {
	return &orderStatusHistoryGormRepository{db: db}
}

func (r *orderStatusHistoryGormRepository) Create(ctx context.Context, h model.OrderStatusHistory) (model.OrderStatusHistory, error) {
	if err := r.db.WithContext(ctx).Create(&h).Error; err != nil {
		return model.OrderStatusHistory{}, translateError(err)
	}
	return h, nil
}

func (r *orderStatusHistoryGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	var rows []model.OrderStatusHistory

	//古い順
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}
