package repository

import (
	"context"
	"fmt"
	"time"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return model.Order{}, translateError(err)
	}
	return order, nil
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if err != nil {
		return model.Order{}, translateError(err)
	}
	return o, nil
}

func (r *OrderGormRepository) LockByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if err != nil {
		return model.Order{}, translateError(err)
	}
	return o, nil
}

func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus, payment model.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND order_status = ?", orderID, from).
		Updates(map[string]interface{}{
			"order_status":   to,
			"payment_status": payment,
			"updated_at":     time.Now(),
		})

	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	//0件なら「無い」のか「ステータスが変わっていた」のかを区別
	if _, err := r.FindByID(ctx, orderID); err != nil {
		return err
	}
	return repo.ErrStatusConflict
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Limit(1).
		Find(&o).Error
	if err != nil {
		return model.Order{}, false, translateError(err)
	}
	if o.ID == 0 {
		return model.Order{}, false, nil
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, f repo.UserOrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", f.UserID)
	if f.Status != nil {
		q = q.Where("order_status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, translateError(err)
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	err := q.
		Order("created_at desc").
		Order("id desc").
		Limit(f.Limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, translateError(err)
	}

	return items, total, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != nil {
		q = q.Where("order_status = ?", *f.Status)
	}

	//user_id 絞り込み
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	q = whereCreatedBetween(q, f.From, f.To)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, translateError(err)
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("created_at desc").Order("id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, translateError(err)
	}

	return items, total, nil
}

type statusCountRow struct {
	OrderStatus model.OrderStatus
	Count       int64
}

type revenueRow struct {
	Period  time.Time
	Orders  int64
	Revenue decimal.Decimal
}

func (r *OrderGormRepository) Stats(ctx context.Context, f repo.OrderStatsFilter) (repo.OrderStats, error) {
	bucket := f.Bucket
	if bucket != repo.StatsBucketMonth {
		bucket = repo.StatsBucketDay
	}

	base := func() *gorm.DB {
		return whereCreatedBetween(r.db.WithContext(ctx).Model(&model.Order{}), f.From, f.To)
	}

	var counts []statusCountRow
	if err := base().
		Select("order_status, COUNT(*) AS count").
		Group("order_status").
		Scan(&counts).Error; err != nil {
		return repo.OrderStats{}, translateError(err)
	}

	stats := repo.OrderStats{
		ByStatus:         make(map[model.OrderStatus]int64, len(model.OrderStatuses)),
		CompletedRevenue: decimal.Zero,
		Revenue:          []repo.RevenueBucket{},
	}
	for _, s := range model.OrderStatuses {
		stats.ByStatus[s] = 0
	}
	for _, c := range counts {
		stats.ByStatus[c.OrderStatus] = c.Count
		stats.TotalOrders += c.Count
	}

	// bucket は day / month のどちらかに絞ってある。区切りはUTC。
	period := fmt.Sprintf("date_trunc('%s', created_at AT TIME ZONE 'UTC')", bucket)
	var rows []revenueRow
	if err := base().
		Select(period+" AS period, COUNT(*) AS orders, COALESCE(SUM(total_amount), 0) AS revenue").
		Where("order_status = ?", model.OrderStatusCompleted).
		Group("period").
		Order("period asc").
		Scan(&rows).Error; err != nil {
		return repo.OrderStats{}, translateError(err)
	}

	for _, row := range rows {
		stats.Revenue = append(stats.Revenue, repo.RevenueBucket{
			Period:  time.Date(row.Period.Year(), row.Period.Month(), row.Period.Day(), 0, 0, 0, 0, time.UTC),
			Orders:  row.Orders,
			Revenue: row.Revenue,
		})
		stats.CompletedRevenue = stats.CompletedRevenue.Add(row.Revenue)
	}

	return stats, nil
}

// created_at を [from, to) で絞る
func whereCreatedBetween(q *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}
	return q
}
