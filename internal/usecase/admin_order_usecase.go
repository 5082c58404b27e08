package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ordercore/internal/domain/model"
	"ordercore/internal/logging"
	repo "ordercore/internal/repository"
)

const (
	adminListMaxLimit = 100
	maxStatusNoteLen  = 500
)

type AdminOrderUsecase struct {
	tx    repo.TransactionManager
	stats StatsCache
	now   func() time.Time
}

func NewAdminOrderUsecase(tx repo.TransactionManager, stats StatsCache, now func() time.Time) *AdminOrderUsecase {
	if stats == nil {
		stats = nopStatsCache{}
	}
	if now == nil {
		now = time.Now
	}
	return &AdminOrderUsecase{tx: tx, stats: stats, now: now}
}

type AdminListOrdersInput struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// 注文一覧（絞り込み・ページング）
func (u *AdminOrderUsecase) List(ctx context.Context, in AdminListOrdersInput) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if in.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid page")
	}
	if in.Limit < 1 || in.Limit > adminListMaxLimit {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid limit")
	}
	if err := validateWindow(in.From, in.To); err != nil {
		return OrderListOutput{}, err
	}

	f := repo.AdminOrderListFilter{
		Page:   in.Page,
		Limit:  in.Limit,
		UserID: in.UserID,
		From:   in.From,
		To:     in.To,
	}
	if strings.TrimSpace(in.Status) != "" {
		s, ok := model.ParseOrderStatus(in.Status)
		if !ok {
			return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid order_status")
		}
		f.Status = &s
	}

	var out OrderListOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
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

func (u *AdminOrderUsecase) Detail(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = loadOrderDetail(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, toHTTPError(err)
	}
	return out, nil
}

type AdminUpdateOrderStatusInput struct {
	Status string
	Note   string
}

// ステータス更新（cancelled なら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid id")
	}

	to, ok := model.ParseOrderStatus(in.Status)
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid status").
			WithDetails(map[string]any{"status": in.Status})
	}
	if utf8.RuneCountInString(in.Note) > maxStatusNoteLen {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "note too long").
			WithDetails(map[string]any{"max_length": maxStatusNoteLen})
	}

	var (
		out    OrderOutput
		result transitionResult
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		result, err = applyTransition(ctx, r, transitionRequest{
			OrderID: orderID,
			To:      to,
			ActorID: actorAdminUserID,
			Note:    optionalString(in.Note),
			At:      u.now(),
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

	recordTransition(ctx, result, actorAdminUserID)
	if err := u.stats.Invalidate(ctx); err != nil {
		logging.FromCtx(ctx).Warn("stats cache invalidate failed", "err", err)
	}
	return out, nil
}

type OrderStatsInput struct {
	From   *time.Time
	To     *time.Time
	Bucket string
}

// 状態別件数・売上（completed のみ）・期間別売上
func (u *AdminOrderUsecase) Stats(ctx context.Context, in OrderStatsInput) (repo.OrderStats, error) {
	if err := validateWindow(in.From, in.To); err != nil {
		return repo.OrderStats{}, err
	}

	f := repo.OrderStatsFilter{From: in.From, To: in.To, Bucket: repo.StatsBucketDay}
	switch strings.ToLower(strings.TrimSpace(in.Bucket)) {
	case "", string(repo.StatsBucketDay):
	case string(repo.StatsBucketMonth):
		f.Bucket = repo.StatsBucketMonth
	default:
		return repo.OrderStats{}, NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid bucket").
			WithDetails(map[string]any{"allowed": []string{"day", "month"}})
	}

	log := logging.FromCtx(ctx)
	if cached, ok, err := u.stats.Get(ctx, f); err != nil {
		log.Warn("stats cache read failed", "err", err)
	} else if ok {
		return cached, nil
	}

	var stats repo.OrderStats
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		stats, err = r.Orders().Stats(ctx, f)
		return err
	})
	if err != nil {
		return repo.OrderStats{}, toHTTPError(err)
	}

	if err := u.stats.Set(ctx, f, stats); err != nil {
		log.Warn("stats cache write failed", "err", err)
	}
	return stats, nil
}

func validateWindow(from, to *time.Time) error {
	if from != nil && to != nil && !from.Before(*to) {
		return NewHTTPError(http.StatusBadRequest, CodeValidation, "from must be before to")
	}
	return nil
}
