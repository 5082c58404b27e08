package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	// 代金引換
	PaymentMethodCOD  PaymentMethod = "COD"
	PaymentMethodMock PaymentMethod = "MOCK"
)

// 受け取り時に支払う方式か
func (m PaymentMethod) IsPayOnDelivery() bool {
	return m == PaymentMethodCOD
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// 注文時点の配送先（JSONで保存）
type ShippingAddress struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city"`
}

// 注文。order_code/user/配送先/支払方法は作成後に変わらない。
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderCode       string          `gorm:"type:varchar(32);not null;uniqueIndex:ux_orders_order_code" json:"order_code"`
	UserID          int64           `gorm:"not null;index:idx_orders_user_created,priority:1;uniqueIndex:ux_orders_user_idempotency,priority:1" json:"user_id"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	ShippingAddress ShippingAddress `gorm:"type:jsonb;serializer:json;not null" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(16);not null" json:"payment_method"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(16);not null" json:"payment_status"`
	OrderStatus     OrderStatus     `gorm:"type:varchar(16);not null;index:idx_orders_status_created,priority:1" json:"order_status"`
	Note            *string         `gorm:"type:text" json:"note,omitempty"`
	IdempotencyKey  *string         `gorm:"type:varchar(255);uniqueIndex:ux_orders_user_idempotency,priority:2" json:"-"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_orders_status_created,priority:2;index:idx_orders_user_created,priority:2;index:idx_orders_created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}
