package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue uses a durable RabbitMQ queue. Deliveries are acked after the
// handler returns; failed jobs are dropped rather than requeued.
type AMQPQueue struct {
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pub    *amqp.Channel
	queue  string
	logger *slog.Logger
}

func NewAMQPQueue(url, queue string, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPQueue{conn: conn, pub: ch, queue: queue, logger: logger}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	b, err := encode(job)
	if err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.RideID,
		Timestamp:    time.Now(),
		Body:         b,
	})
}

func (q *AMQPQueue) Consume(ctx context.Context, h Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			job, err := decode(d.Body)
			if err != nil {
				q.logger.Warn("invalid broadcast job", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = h(ctx, job)
			_ = d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() error {
	_ = q.pub.Close()
	return q.conn.Close()
}
