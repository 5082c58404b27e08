// Package worker はHTTPリクエストの外で動く常駐処理。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ordercore/internal/infra/messaging"
	"ordercore/internal/metrics"
	repo "ordercore/internal/repository"
)

// outbox の未送信イベントを定期的に publish する。
// 送信済みにするのは publish 成功後なので、配送は at-least-once。
type OutboxRelay struct {
	tx       repo.TransactionManager
	pub      messaging.Publisher
	interval time.Duration
	batch    int
	log      *slog.Logger
	now      func() time.Time
}

func NewOutboxRelay(tx repo.TransactionManager, pub messaging.Publisher, interval time.Duration, batch int, log *slog.Logger) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{
		tx:       tx,
		pub:      pub,
		interval: interval,
		batch:    batch,
		log:      log,
		now:      time.Now,
	}
}

// ctx がキャンセルされるまでブロックする
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", "interval", r.interval.String(), "batch", r.batch)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil && ctx.Err() == nil {
				r.log.Warn("outbox relay failed", "sent", n, "err", err)
				continue
			}
			if n > 0 {
				r.log.Debug("outbox relayed", "sent", n)
			}
		}
	}
}

// 1バッチ分送る。publish に失敗したらそこで止め、それまでの送信済みはコミットする。
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	sent := 0
	var pubErr error

	err := r.tx.WithinTx(ctx, func(tr repo.TxRepos) error {
		sent = 0
		pubErr = nil

		evts, err := tr.Outbox().FetchPending(ctx, r.batch)
		if err != nil {
			return err
		}
		for _, e := range evts {
			if err := r.pub.Publish(ctx, e); err != nil {
				metrics.OutboxPublished.WithLabelValues("error").Inc()
				pubErr = fmt.Errorf("publish %s: %w", e.EventID, err)
				break
			}
			if err := tr.Outbox().MarkSent(ctx, e.ID, r.now()); err != nil {
				return err
			}
			metrics.OutboxPublished.WithLabelValues("sent").Inc()
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, pubErr
}
