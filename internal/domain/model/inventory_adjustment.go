package model

import "time"

type InventoryReason string

const (
	// 注文確定による引き当て
	InventoryReasonCheckout InventoryReason = "CHECKOUT"
	// キャンセルによる在庫戻し
	InventoryReasonCancel InventoryReason = "CANCEL_RESTORE"
)

// 在庫の増減履歴。stockの更新と同じトランザクションで書く。
type InventoryAdjustment struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ActorUserID int64           `gorm:"not null;index" json:"actor_user_id"`
	Delta       int64           `gorm:"not null" json:"delta"`
	Reason      InventoryReason `gorm:"type:varchar(32);not null" json:"reason"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
