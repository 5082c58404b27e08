package usecase

import (
	"time"

	"ordercore/internal/domain/model"

	"github.com/shopspring/decimal"
)

type OrderItemOutput struct {
	ID                  int64           `json:"id"`
	ProductID           int64           `json:"product_id"`
	ProductNameSnapshot string          `json:"product_name_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `json:"unit_price_snapshot"`
	Quantity            int64           `json:"quantity"`
	Subtotal            decimal.Decimal `json:"subtotal"`
}

type StatusHistoryOutput struct {
	FromStatus model.OrderStatus `json:"from_status"`
	ToStatus   model.OrderStatus `json:"to_status"`
	Note       *string           `json:"note,omitempty"`
	ChangedBy  int64             `json:"changed_by"`
	CreatedAt  time.Time         `json:"created_at"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	OrderCode       string                `json:"order_code"`
	UserID          int64                 `json:"user_id"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod   `json:"payment_method"`
	PaymentStatus   model.PaymentStatus   `json:"payment_status"`
	OrderStatus     model.OrderStatus     `json:"order_status"`
	Note            *string               `json:"note,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Items           []OrderItemOutput     `json:"items"`
	History         []StatusHistoryOutput `json:"history,omitempty"`
}

type ListMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

type OrderListOutput struct {
	Data []OrderOutput `json:"data"`
	Meta ListMeta      `json:"meta"`
}

func newListMeta(total int64, page, limit int) ListMeta {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return ListMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

func toOrderOutput(o model.Order, items []model.OrderItem, history []model.OrderStatusHistory) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:                  it.ID,
			ProductID:           it.ProductID,
			ProductNameSnapshot: it.ProductNameSnapshot,
			UnitPriceSnapshot:   it.UnitPriceSnapshot,
			Quantity:            it.Quantity,
			Subtotal:            it.Subtotal,
		})
	}

	var outHistory []StatusHistoryOutput
	for _, h := range history {
		outHistory = append(outHistory, StatusHistoryOutput{
			FromStatus: h.FromStatus,
			ToStatus:   h.ToStatus,
			Note:       h.Note,
			ChangedBy:  h.ChangedBy,
			CreatedAt:  h.CreatedAt,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		OrderCode:       o.OrderCode,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		OrderStatus:     o.OrderStatus,
		Note:            o.Note,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           outItems,
		History:         outHistory,
	}
}
