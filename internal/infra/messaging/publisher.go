package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"ordercore/internal/domain/model"

	"github.com/segmentio/kafka-go"
)

// リレーが outbox のイベントを流す先
type Publisher interface {
	Publish(ctx context.Context, evt model.OutboxEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// キーは注文ID。同じ注文のイベントは同じパーティションに乗る。
func (p *KafkaPublisher) Publish(ctx context.Context, evt model.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(formatID(evt.AggregateID)),
		Value: []byte(evt.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ブローカー未設定時はログに出すだけ
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, evt model.OutboxEvent) error {
	p.log.Info("event",
		"event_id", evt.EventID,
		"event_type", evt.EventType,
		"order_id", evt.AggregateID,
		"payload", evt.Payload,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
