package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type OrderCodeGormRepository struct {
	db *gorm.DB
}

func NewOrderCodeGormRepository(db *gorm.DB) *OrderCodeGormRepository {
	return &OrderCodeGormRepository{db: db}
}

// 日付行を upsert して番号を進める。行ロックはコミットまで保持される。
const nextOrderCodeSQL = `
INSERT INTO order_code_sequences (day, last_seq)
VALUES (?, (SELECT COUNT(*) FROM orders WHERE created_at >= ? AND created_at < ?) + 1)
ON CONFLICT (day) DO UPDATE SET last_seq = order_code_sequences.last_seq + 1
RETURNING last_seq`

func (r *OrderCodeGormRepository) NextSequence(ctx context.Context, day string, dayStart, dayEnd time.Time) (int64, error) {
	var seq int64
	if err := r.db.WithContext(ctx).Raw(nextOrderCodeSQL, day, dayStart, dayEnd).Scan(&seq).Error; err != nil {
		return 0, translateError(err)
	}
	return seq, nil
}
