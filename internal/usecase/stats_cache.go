package usecase

import (
	"context"

	repo "ordercore/internal/repository"
)

// 管理画面の集計結果キャッシュ。注文の作成・状態変更で丸ごと無効化する。
type StatsCache interface {
	Get(ctx context.Context, f repo.OrderStatsFilter) (repo.OrderStats, bool, error)
	Set(ctx context.Context, f repo.OrderStatsFilter, stats repo.OrderStats) error
	Invalidate(ctx context.Context) error
}

type nopStatsCache struct{}

func (nopStatsCache) Get(context.Context, repo.OrderStatsFilter) (repo.OrderStats, bool, error) {
	return repo.OrderStats{}, false, nil
}
func (nopStatsCache) Set(context.Context, repo.OrderStatsFilter, repo.OrderStats) error { return nil }
func (nopStatsCache) Invalidate(context.Context) error                                { return nil }
