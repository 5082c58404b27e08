package model

import "strings"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 全ステータス（表示順）
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipping,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// 遷移表はここだけ。shipping -> cancelled は許可しない（配送中の在庫は戻せない）。
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:   {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// 終端（completed / cancelled）
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(AllowedTransitions[s]) == 0
}

// from から遷移できるステータス一覧（コピーを返す）
func NextStatuses(from OrderStatus) []OrderStatus {
	next := AllowedTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}
