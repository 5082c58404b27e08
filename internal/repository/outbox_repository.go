package repository

import (
	"context"
	"time"

	"ordercore/internal/domain/model"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, evt model.OutboxEvent) error

	// 未送信を古い順に取得。他のリレーが処理中の行は飛ばす。
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)

	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}
