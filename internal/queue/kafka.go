package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaQueue publishes jobs to a topic keyed by ride id and consumes them
// through a consumer group.
type KafkaQueue struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	group   string
	logger  *slog.Logger
}

func NewKafkaQueue(brokers []string, topic, group string, logger *slog.Logger) *KafkaQueue {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}, RequiredAcks: kafka.RequireOne}
	return &KafkaQueue{writer: w, brokers: brokers, topic: topic, group: group, logger: logger}
}

func (k *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	b, err := encode(job)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.RideID), Value: b})
}

func (k *KafkaQueue) Consume(ctx context.Context, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: k.brokers, Topic: k.topic, GroupID: k.group, MinBytes: 1, MaxBytes: 10e6})
	defer r.Close()

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		job, err := decode(m.Value)
		if err != nil {
			k.logger.Warn("invalid broadcast job", "error", err, "offset", m.Offset)
			continue
		}
		_ = h(ctx, job)
	}
}

func (k *KafkaQueue) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
