package repository

import (
	"context"
	"time"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Enqueue(ctx context.Context, evt model.OutboxEvent) error {
	if err := r.db.WithContext(ctx).Create(&evt).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func (r *OutboxGormRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("sent_at IS NULL").
		Order("id asc").
		Limit(limit).
		Find(&evts).Error
	if err != nil {
		return nil, translateError(err)
	}
	return evts, nil
}

func (r *OutboxGormRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Update("sent_at", sentAt)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
