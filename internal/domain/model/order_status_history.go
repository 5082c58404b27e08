package model

import "time"

// ステータス変更の履歴（追記のみ）。作成時は pending -> pending を1件残す。
type OrderStatusHistory struct {
	ID         int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64       `gorm:"not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"type:varchar(16);not null" json:"from_status"`
	ToStatus   OrderStatus `gorm:"type:varchar(16);not null;index" json:"to_status"`
	Note       *string     `gorm:"type:text" json:"note,omitempty"`
	ChangedBy  int64       `gorm:"not null;index" json:"changed_by"`
	CreatedAt  time.Time   `gorm:"not null;index" json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
