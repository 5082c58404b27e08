package model

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// 送信待ちイベント。注文の更新と同じトランザクションで積む。
type OutboxEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"event_id"`
	EventType   string     `gorm:"type:varchar(64);not null" json:"event_type"`
	AggregateID int64      `gorm:"not null;index" json:"aggregate_id"`
	Payload     string     `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	SentAt      *time.Time `gorm:"index" json:"sent_at"`
}
