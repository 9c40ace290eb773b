package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Bus implements ports.MessageBus over RabbitMQ, one durable queue per
// topic. Envelopes travel as JSON bodies.
type Bus struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger

	mu       sync.Mutex
	declared map[string]bool
	closed   bool
}

// Config holds RabbitMQ connection parameters.
type Config struct {
	URL      string
	Prefetch int
	Durable  bool
}

// NewBus dials RabbitMQ and opens a channel.
func NewBus(cfg Config, logger *zap.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq URL is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set RabbitMQ QoS: %w", err)
		}
	}
	return &Bus{
		conn:     conn,
		ch:       ch,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// Publish sends the envelope to the topic's queue.
func (b *Bus) Publish(ctx context.Context, topic string, msg *domain.Message) error {
	if err := b.declareQueue(topic); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = b.ch.PublishWithContext(ctx, "", queueName(topic), false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          data,
		MessageId:     msg.ID,
		CorrelationId: msg.Correlation.ConversationID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	b.logger.Debug("message published",
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.String("topic", topic))

	return nil
}

// Subscribe consumes the topic's queue until the context is cancelled.
// Malformed deliveries are acknowledged and dropped.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.MessageHandler) error {
	if err := b.declareQueue(topic); err != nil {
		return err
	}

	deliveries, err := b.ch.Consume(queueName(topic), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				b.processDelivery(ctx, topic, delivery, handler)
			}
		}
	}()

	b.logger.Info("subscribed to queue", zap.String("topic", topic))
	return nil
}

func (b *Bus) processDelivery(ctx context.Context, topic string, delivery amqp.Delivery, handler ports.MessageHandler) {
	var msg domain.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		b.logger.Error("failed to unmarshal message",
			zap.String("topic", topic),
			zap.Error(err))
		_ = delivery.Ack(false)
		return
	}

	if err := handler(ctx, &msg); err != nil {
		b.logger.Error("handler error",
			zap.String("topic", topic),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	_ = delivery.Ack(false)
}

// declareQueue declares the topic's queue once per process.
func (b *Bus) declareQueue(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declared[topic] {
		return nil
	}
	if _, err := b.ch.QueueDeclare(queueName(topic), true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	b.declared[topic] = true
	return nil
}

// Close shuts the channel and connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}

func queueName(topic string) string {
	return "agentify." + topic
}
