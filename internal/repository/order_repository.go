package repository

import (
	"context"
	"time"

	"ordercore/internal/domain/model"

	"github.com/shopspring/decimal"
)

// ユーザー自身の注文一覧
type UserOrderListFilter struct {
	UserID int64
	Status *model.OrderStatus
	Page   int
	Limit  int
}

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status *model.OrderStatus
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type StatsBucket string

const (
	StatsBucketDay   StatsBucket = "day"
	StatsBucketMonth StatsBucket = "month"
)

// 集計の条件。From/To は created_at の [From, To)
type OrderStatsFilter struct {
	From   *time.Time
	To     *time.Time
	Bucket StatsBucket
}

type RevenueBucket struct {
	Period  time.Time       `json:"period"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type OrderStats struct {
	TotalOrders int64                       `json:"total_orders"`
	ByStatus    map[model.OrderStatus]int64 `json:"by_status"`
	// completed の注文だけを合計
	CompletedRevenue decimal.Decimal `json:"completed_revenue"`
	Revenue          []RevenueBucket `json:"revenue"`
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (model.Order, error)
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	// 注文行を排他ロックして読む
	LockByID(ctx context.Context, orderID int64) (model.Order, error)

	// 現在のステータスが from のときだけ更新する。違えば ErrStatusConflict
	UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus, payment model.PaymentStatus) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)

	ListByUserID(ctx context.Context, f UserOrderListFilter) ([]model.Order, int64, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	Stats(ctx context.Context, f OrderStatsFilter) (OrderStats, error)
}
