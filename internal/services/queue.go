package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/config"
)

const (
	QueueDriverMemory = "memory"
	QueueDriverAMQP   = "amqp"
)

var ErrQueueClosed = errors.New("queue closed")

// TaskHandler processes one delivered task id.
type TaskHandler func(ctx context.Context, taskID uuid.UUID) error

// TaskQueue delivers each enqueued task id to one Consume handler at a time.
// Delivery is at least once.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
	// Consume blocks, running handler for each delivery until ctx is done.
	Consume(ctx context.Context, handler TaskHandler) error
	Close() error
}

func NewTaskQueue(cfg config.QueueConfig, log *zap.Logger) (TaskQueue, error) {
	switch cfg.Driver {
	case QueueDriverMemory, "":
		return NewMemoryQueue(cfg.BufferSize), nil
	case QueueDriverAMQP:
		return NewAMQPQueue(cfg.AMQPURL, cfg.QueueName, log)
	default:
		return nil, &ConfigurationError{Param: "queue driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
}

type memoryQueue struct {
	jobs      chan uuid.UUID
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue is an in-process queue for single binary deployments.
func NewMemoryQueue(buffer int) TaskQueue {
	if buffer <= 0 {
		buffer = 100
	}
	return &memoryQueue{
		jobs: make(chan uuid.UUID, buffer),
		done: make(chan struct{}),
	}
}

func (q *memoryQueue) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- taskID:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Consume(ctx context.Context, handler TaskHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case id := <-q.jobs:
			// Handler errors are recorded on the task by the handler itself.
			_ = handler(ctx, id)
		}
	}
}

func (q *memoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

type taskMessage struct {
	TaskID string `json:"task_id"`
}

type amqpQueue struct {
	conn  *amqp.Connection
	name  string
	log   *zap.Logger
	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPQueue declares a durable queue and publishes persistent messages to it.
func NewAMQPQueue(url, name string, log *zap.Logger) (TaskQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error dialling rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}

	if _, err := declareTaskQueue(ch, name); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &amqpQueue{conn: conn, name: name, log: log, pubCh: ch}, nil
}

func declareTaskQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return q, nil
}

func (q *amqpQueue) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(taskMessage{TaskID: taskID.String()})
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.pubCh.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    taskID.String(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish task %s: %w", taskID, err)
	}
	return nil
}

// Consume opens its own channel with prefetch 1 and acks after the handler
// returns.
func (q *amqpQueue) Consume(ctx context.Context, handler TaskHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	if _, err := declareTaskQueue(ch, q.name); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("error consuming rabbitmq messages: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrQueueClosed
			}
			q.handle(ctx, msg, handler)
		}
	}
}

func (q *amqpQueue) handle(ctx context.Context, msg amqp.Delivery, handler TaskHandler) {
	taskID, err := decodeTaskMessage(msg.Body)
	if err != nil {
		q.log.Warn("⚠️ dropping malformed task message", zap.ByteString("body", msg.Body), zap.Error(err))
		_ = msg.Reject(false)
		return
	}

	// The handler records failures on the task, so every handled delivery is acked.
	_ = handler(ctx, taskID)
	if ackErr := msg.Ack(false); ackErr != nil {
		q.log.Warn("⚠️ failed to ack delivery", zap.String("task_id", taskID.String()), zap.Error(ackErr))
	}
}

func decodeTaskMessage(body []byte) (uuid.UUID, error) {
	var m taskMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(m.TaskID)
}

func (q *amqpQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	if q.pubCh != nil {
		errs = append(errs, q.pubCh.Close())
	}
	errs = append(errs, q.conn.Close())
	return errors.Join(errs...)
}
