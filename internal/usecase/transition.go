package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"ordercore/internal/domain/model"
	"ordercore/internal/logging"
	repo "ordercore/internal/repository"
)

type transitionRequest struct {
	OrderID int64
	To      model.OrderStatus
	ActorID int64
	Note    *string
	At      time.Time

	// ロック後・遷移判定前に呼ばれる（所有者チェックなど）
	Guard func(o model.Order) error
}

type transitionResult struct {
	Order         model.Order
	From          model.OrderStatus
	RestoredUnits int64
}

// 注文行をロックし、遷移表で判定してから状態を進める。
// cancelled への遷移では同じトランザクション内で在庫を戻す。
func applyTransition(ctx context.Context, r repo.TxRepos, req transitionRequest) (transitionResult, error) {
	o, err := r.Orders().LockByID(ctx, req.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return transitionResult{}, errOrderNotFound()
	}
	if err != nil {
		return transitionResult{}, err
	}

	if req.Guard != nil {
		if err := req.Guard(o); err != nil {
			return transitionResult{}, err
		}
	}

	from := o.OrderStatus
	if !model.CanTransition(from, req.To) {
		return transitionResult{}, errInvalidTransition(from, req.To, model.NextStatuses(from), "")
	}

	payment := o.PaymentStatus
	if req.To == model.OrderStatusCompleted && o.PaymentMethod.IsPayOnDelivery() {
		//代引きは受け取り時に支払い済み
		payment = model.PaymentStatusPaid
	}

	var restored int64
	if req.To == model.OrderStatusCancelled {
		restored, err = restoreStock(ctx, r, o, req.ActorID, req.At)
		if err != nil {
			return transitionResult{}, err
		}
	}

	if err := r.Orders().UpdateStatus(ctx, o.ID, from, req.To, payment); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return transitionResult{}, errInvalidTransition(from, req.To, model.NextStatuses(from), "order status changed concurrently")
		}
		return transitionResult{}, err
	}

	if _, err := r.StatusHistory().Create(ctx, model.OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   req.To,
		Note:       req.Note,
		ChangedBy:  req.ActorID,
		CreatedAt:  req.At,
	}); err != nil {
		return transitionResult{}, err
	}

	o.OrderStatus = req.To
	o.PaymentStatus = payment
	o.UpdatedAt = req.At

	evt, err := newOrderEvent(model.EventOrderStatusChanged, o, from, req.ActorID, req.At)
	if err != nil {
		return transitionResult{}, err
	}
	if err := r.Outbox().Enqueue(ctx, evt); err != nil {
		return transitionResult{}, err
	}

	return transitionResult{Order: o, From: from, RestoredUnits: restored}, nil
}

// 明細の数量を商品ID昇順で在庫に戻す。商品行はそれぞれロックしてから更新。
func restoreStock(ctx context.Context, r repo.TxRepos, o model.Order, actorID int64, at time.Time) (int64, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ProductID != items[j].ProductID {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].ID < items[j].ID
	})

	var units int64
	for _, it := range items {
		if _, err := r.Inventory().LockProduct(ctx, it.ProductID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				//削除済み商品には戻さない
				logging.FromCtx(ctx).Warn("skip stock restore for missing product",
					"order_id", o.ID, "product_id", it.ProductID, "quantity", it.Quantity)
				continue
			}
			return 0, err
		}
		if err := r.Inventory().AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return 0, err
		}
		if err := r.Inventory().RecordAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   it.ProductID,
			OrderID:     o.ID,
			ActorUserID: actorID,
			Delta:       it.Quantity,
			Reason:      model.InventoryReasonCancel,
			CreatedAt:   at,
		}); err != nil {
			return 0, err
		}
		units += it.Quantity
	}
	return units, nil
}
