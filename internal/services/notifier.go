package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

// StatusUpdate is published on every task status transition.
type StatusUpdate struct {
	TaskID    uuid.UUID         `json:"task_id"`
	Status    models.TaskStatus `json:"status"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

type StatusNotifier interface {
	Publish(ctx context.Context, update StatusUpdate) error
	Close() error
}

type nopNotifier struct{}

func NewNopNotifier() StatusNotifier { return nopNotifier{} }

func (nopNotifier) Publish(context.Context, StatusUpdate) error { return nil }
func (nopNotifier) Close() error                                { return nil }

type amqpNotifier struct {
	conn     *amqp.Connection
	exchange string
	mu       sync.Mutex
	ch       *amqp.Channel
}

// NewAMQPNotifier publishes updates to a topic exchange with key task.<id>.
func NewAMQPNotifier(url, exchange string) (StatusNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error dialling rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &amqpNotifier{conn: conn, exchange: exchange, ch: ch}, nil
}

func (n *amqpNotifier) Publish(ctx context.Context, update StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	return n.ch.Publish(
		n.exchange,
		fmt.Sprintf("task.%s", update.TaskID),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (n *amqpNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ch.Close()
	return n.conn.Close()
}
