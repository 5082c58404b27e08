package usecase

import (
	"encoding/json"
	"time"

	"ordercore/internal/domain/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderEventPayload struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	OrderID     int64             `json:"order_id"`
	OrderCode   string            `json:"order_code"`
	UserID      int64             `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	FromStatus  model.OrderStatus `json:"from_status,omitempty"`
	ToStatus    model.OrderStatus `json:"to_status"`
	ActorID     int64             `json:"actor_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// 注文の変更と同じトランザクションで積むイベント
func newOrderEvent(eventType string, o model.Order, from model.OrderStatus, actorID int64, at time.Time) (model.OutboxEvent, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(orderEventPayload{
		EventID:     id,
		EventType:   eventType,
		OrderID:     o.ID,
		OrderCode:   o.OrderCode,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		FromStatus:  from,
		ToStatus:    o.OrderStatus,
		ActorID:     actorID,
		OccurredAt:  at.UTC(),
	})
	if err != nil {
		return model.OutboxEvent{}, err
	}
	return model.OutboxEvent{
		EventID:     id,
		EventType:   eventType,
		AggregateID: o.ID,
		Payload:     string(payload),
		CreatedAt:   at,
	}, nil
}
