package usecase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"ordercore/internal/domain/model"
	"ordercore/internal/logging"
	"ordercore/internal/metrics"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	orderCreatedNote = "order created"
	userCancelNote   = "cancelled by customer"

	userListMaxLimit = 50
)

// 注文入力の検証（validatorパッケージで実装）
type OrderValidator interface {
	ValidatePlaceOrder(in PlaceOrderInput) error
}

type CheckoutOptions struct {
	// リトライ可能な競合での最大試行回数
	MaxAttempts int
	// 注文番号の日付を決めるタイムゾーン
	Location     *time.Location
	RetryBackoff time.Duration
	Now          func() time.Time
}

type OrderUsecase struct {
	tx        repo.TransactionManager
	validator OrderValidator
	stats     StatsCache
	opts      CheckoutOptions
}

func NewOrderUsecase(tx repo.TransactionManager, validator OrderValidator, stats StatsCache, opts CheckoutOptions) *OrderUsecase {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if stats == nil {
		stats = nopStatsCache{}
	}
	return &OrderUsecase{tx: tx, validator: validator, stats: stats, opts: opts}
}

type PlaceOrderInput struct {
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
	Note            string
	IdempotencyKey  string
}

type PlaceOrderResult struct {
	Order OrderOutput
	// false なら同じ冪等キーの既存注文を返した
	Created bool
}

func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderResult, error) {
	if userID <= 0 {
		return PlaceOrderResult{}, errUnauthorized()
	}
	if err := u.validator.ValidatePlaceOrder(in); err != nil {
		return PlaceOrderResult{}, err
	}

	log := logging.FromCtx(ctx).With("user_id", userID)

	var (
		res PlaceOrderResult
		err error
	)
	for attempt := 1; attempt <= u.opts.MaxAttempts; attempt++ {
		res, err = u.placeOrderOnce(ctx, userID, in)
		if err == nil || !repo.IsRetryable(err) || attempt == u.opts.MaxAttempts {
			break
		}

		metrics.CheckoutRetries.Inc()
		log.Warn("checkout conflict, retrying", "attempt", attempt, "err", err)
		select {
		case <-time.After(time.Duration(attempt) * u.opts.RetryBackoff):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		he := toHTTPError(err)
		metrics.Checkouts.WithLabelValues(checkoutResult(he)).Inc()
		if he.Status >= http.StatusInternalServerError {
			log.Error("checkout failed", "err", err)
		} else {
			log.Info("checkout rejected", "code", he.Code)
		}
		return PlaceOrderResult{}, he
	}

	metrics.Checkouts.WithLabelValues("ok").Inc()
	if res.Created {
		u.invalidateStats(ctx)
		log.Info("order placed", "order_id", res.Order.ID, "order_code", res.Order.OrderCode, "total_amount", res.Order.TotalAmount.String())
	}
	return res, nil
}

func checkoutResult(he *HTTPError) string {
	switch he.Code {
	case CodeCartEmpty:
		return "cart_empty"
	case CodeOutOfStock:
		return "out_of_stock"
	case CodeProductNotFound:
		return "product_not_found"
	case CodeLockTimeout:
		return "lock_timeout"
	case CodeOrderCodeCollision, CodeIdempotencyConflict:
		return "code_collision"
	default:
		return "error"
	}
}

// 1回分のトランザクション。途中で失敗したら在庫の減算も含めて全て戻る。
func (u *OrderUsecase) placeOrderOnce(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderResult, error) {
	now := u.opts.Now()
	key := strings.TrimSpace(in.IdempotencyKey)
	method := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = model.PaymentMethodCOD
	}

	var res PlaceOrderResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//カート取得（ロック）
		cart, err := r.Carts().LockByUserID(ctx, userID)
		hasCart := err == nil
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		// 同じキーなら同じ結果（カートのロック後に見る）
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return err
			}
			if found {
				out, err := loadOrderDetail(ctx, r, existing)
				if err != nil {
					return err
				}
				res = PlaceOrderResult{Order: out, Created: false}
				return nil
			}
		}

		if !hasCart {
			return NewHTTPError(http.StatusBadRequest, CodeCartEmpty, "cart is empty")
		}

		lines, err := r.Carts().ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return NewHTTPError(http.StatusBadRequest, CodeCartEmpty, "cart is empty")
		}

		// ロックを取る前に数量を見る
		requested, err := prepareCartLines(lines)
		if err != nil {
			return err
		}

		items := make([]model.OrderItem, 0, len(lines))
		total := decimal.Zero
		checked := make(map[int64]bool, len(requested))
		for _, line := range lines {
			p, err := r.Inventory().LockProduct(ctx, line.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, CodeProductNotFound, "product not found").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}
			if err != nil {
				return err
			}

			//同じ商品の行は合計で見る（減らす前の在庫と比べる）
			if !checked[p.ID] {
				if p.Stock < requested[p.ID] {
					return NewHTTPError(http.StatusBadRequest, CodeOutOfStock, "insufficient stock").
						WithDetails(map[string]any{
							"product_id":   p.ID,
							"product_name": p.Name,
							"available":    p.Stock,
							"requested":    requested[p.ID],
						})
				}
				checked[p.ID] = true
			}

			//スナップショット
			subtotal := p.Price.Mul(decimal.NewFromInt(line.Quantity))
			total = total.Add(subtotal)
			items = append(items, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            line.Quantity,
				Subtotal:            subtotal,
				CreatedAt:           now,
			})

			if err := r.Inventory().AdjustStock(ctx, p.ID, -line.Quantity); err != nil {
				return err
			}
		}

		//注文番号
		day, dayStart, dayEnd := orderCodeDay(now, u.opts.Location)
		seq, err := r.OrderCodes().NextSequence(ctx, day, dayStart, dayEnd)
		if err != nil {
			return err
		}

		// 注文作成
		order := model.Order{
			OrderCode:       FormatOrderCode(dayStart, seq),
			UserID:          userID,
			TotalAmount:     total,
			ShippingAddress: normalizeAddress(in.ShippingAddress),
			PaymentMethod:   method,
			PaymentStatus:   model.PaymentStatusPending,
			OrderStatus:     model.OrderStatusPending,
			Note:            optionalString(in.Note),
			IdempotencyKey:  optionalString(key),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		order, err = r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}

		//注文明細一括作成
		created, err := r.OrderItems().CreateBulk(ctx, order.ID, items)
		if err != nil {
			return err
		}

		//在庫の増減履歴
		for _, it := range created {
			if err := r.Inventory().RecordAdjustment(ctx, model.InventoryAdjustment{
				ProductID:   it.ProductID,
				OrderID:     order.ID,
				ActorUserID: userID,
				Delta:       -it.Quantity,
				Reason:      model.InventoryReasonCheckout,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		note := orderCreatedNote
		h, err := r.StatusHistory().Create(ctx, model.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: model.OrderStatusPending,
			ToStatus:   model.OrderStatusPending,
			Note:       &note,
			ChangedBy:  userID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		//確定したカートは空にする
		if err := r.Carts().ClearItems(ctx, cart.ID); err != nil {
			return err
		}

		evt, err := newOrderEvent(model.EventOrderCreated, order, "", userID, now)
		if err != nil {
			return err
		}
		if err := r.Outbox().Enqueue(ctx, evt); err != nil {
			return err
		}

		res = PlaceOrderResult{
			Order:   toOrderOutput(order, created, []model.OrderStatusHistory{h}),
			Created: true,
		}
		return nil
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	return res, nil
}

type ListMyOrdersInput struct {
	Page   int
	Limit  int
	Status string
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, in ListMyOrdersInput) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, errUnauthorized()
	}
	if in.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid page")
	}
	if in.Limit < 1 || in.Limit > userListMaxLimit {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid limit")
	}

	f := repo.UserOrderListFilter{UserID: userID, Page: in.Page, Limit: in.Limit}
	if strings.TrimSpace(in.Status) != "" {
		s, ok := model.ParseOrderStatus(in.Status)
		if !ok {
			return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid order_status")
		}
		f.Status = &s
	}

	var out OrderListOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, f)
		if err != nil {
			return err
		}
		out, err = listOutput(ctx, r, orders, total, in.Page, in.Limit)
		return err
	})
	if err != nil {
		return OrderListOutput{}, toHTTPError(err)
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return errOrderNotFound()
		}
		out, err = loadOrderDetail(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, toHTTPError(err)
	}
	return out, nil
}

// 本人の pending 注文だけキャンセルでき、在庫は同じトランザクションで戻る
func (u *OrderUsecase) CancelMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid id")
	}

	note := userCancelNote
	var (
		out    OrderOutput
		result transitionResult
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		result, err = applyTransition(ctx, r, transitionRequest{
			OrderID: orderID,
			To:      model.OrderStatusCancelled,
			ActorID: userID,
			Note:    &note,
			At:      u.opts.Now(),
			Guard: func(o model.Order) error {
				if o.UserID != userID {
					return errOrderNotFound()
				}
				if o.OrderStatus != model.OrderStatusPending {
					return errInvalidTransition(o.OrderStatus, model.OrderStatusCancelled, nil,
						"only pending orders can be cancelled")
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
		out, err = loadOrderDetail(ctx, r, result.Order)
		return err
	})
	if err != nil {
		return OrderOutput{}, toHTTPError(err)
	}

	recordTransition(ctx, result, userID)
	u.invalidateStats(ctx)
	return out, nil
}

func (u *OrderUsecase) invalidateStats(ctx context.Context) {
	if err := u.stats.Invalidate(ctx); err != nil {
		logging.FromCtx(ctx).Warn("stats cache invalidate failed", "err", err)
	}
}

// コミット後に呼ぶ
func recordTransition(ctx context.Context, res transitionResult, actorID int64) {
	metrics.OrderTransitions.WithLabelValues(string(res.From), string(res.Order.OrderStatus)).Inc()
	if res.RestoredUnits > 0 {
		metrics.StockRestoredUnits.Add(float64(res.RestoredUnits))
	}
	logging.FromCtx(ctx).Info("order status changed",
		"order_id", res.Order.ID,
		"from", res.From,
		"to", res.Order.OrderStatus,
		"actor_id", actorID,
		"restored_units", res.RestoredUnits,
	)
}

// 明細と履歴を付けた詳細
func loadOrderDetail(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, err
	}
	history, err := r.StatusHistory().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o, items, history), nil
}

func listOutput(ctx context.Context, r repo.TxRepos, orders []model.Order, total int64, page, limit int) (OrderListOutput, error) {
	data := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, err
		}
		data = append(data, toOrderOutput(o, items, nil))
	}
	return OrderListOutput{Data: data, Meta: newListMeta(total, page, limit)}, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeAddress(a model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		FullName: strings.TrimSpace(a.FullName),
		Phone:    strings.TrimSpace(a.Phone),
		Address:  strings.TrimSpace(a.Address),
		Ward:     strings.TrimSpace(a.Ward),
		District: strings.TrimSpace(a.District),
		City:     strings.TrimSpace(a.City),
	}
}

// 数量を検証し、商品ID昇順に並べて（ロック順を揃えてデッドロックを避ける）商品ごとの合計数量を返す
func prepareCartLines(lines []model.CartItem) (map[int64]int64, error) {
	requested := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, NewHTTPError(http.StatusBadRequest, CodeValidation, "cart line quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID, "quantity": line.Quantity})
		}
		requested[line.ProductID] += line.Quantity
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].ID < lines[j].ID
	})
	return requested, nil
}
