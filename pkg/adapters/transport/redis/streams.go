package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// StreamsBus implements ports.MessageBus using Redis Streams with consumer
// groups. Each topic maps to one stream; messages travel as the JSON protocol
// envelope.
type StreamsBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
}

// NewStreamsBus creates a new Redis Streams message bus.
func NewStreamsBus(client *redis.Client, consumerGroup, consumerName string, logger *zap.Logger) (*StreamsBus, error) {
	return &StreamsBus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
	}, nil
}

// Publish appends the envelope to the topic's stream.
func (b *StreamsBus) Publish(ctx context.Context, topic string, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: getStreamKey(topic),
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if _, err := b.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	b.logger.Debug("message published",
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.String("topic", topic))

	return nil
}

// Subscribe creates the consumer group if needed and starts a reader
// goroutine delivering envelopes to the handler.
func (b *StreamsBus) Subscribe(ctx context.Context, topic string, handler ports.MessageHandler) error {
	streamKey := getStreamKey(topic)

	err := b.client.XGroupCreateMkStream(ctx, streamKey, b.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	b.logger.Info("subscribed to message stream",
		zap.String("stream", streamKey),
		zap.String("topic", topic),
		zap.String("consumer_group", b.consumerGroup),
		zap.String("consumer", b.consumerName))

	go b.readStream(ctx, streamKey, handler)

	return nil
}

// readStream reads envelopes from a stream until the context is cancelled.
func (b *StreamsBus) readStream(ctx context.Context, streamKey string, handler ports.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.consumerGroup,
				Consumer: b.consumerName,
				Streams:  []string{streamKey, ">"},
				Count:    10,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					// No new messages.
					continue
				}
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("failed to read from stream",
					zap.String("stream", streamKey),
					zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					b.processMessage(ctx, streamKey, message, handler)
				}
			}
		}
	}
}

// processMessage decodes and delivers a single stream entry. Malformed
// entries are acknowledged and dropped; they must never wedge the consumer.
func (b *StreamsBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.MessageHandler) {
	ack := func() {
		if err := b.client.XAck(ctx, streamKey, b.consumerGroup, message.ID).Err(); err != nil {
			b.logger.Error("failed to acknowledge message",
				zap.String("stream", streamKey),
				zap.String("message_id", message.ID),
				zap.Error(err))
		}
	}

	data, ok := message.Values["data"].(string)
	if !ok {
		b.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		ack()
		return
	}

	var msg domain.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		b.logger.Error("failed to unmarshal message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		ack()
		return
	}

	if err := handler(ctx, &msg); err != nil {
		b.logger.Error("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		// Fall through to ack: the protocol layer treats redelivery and
		// duplicate replies as drops anyway.
	}
	ack()
}

// Close releases nothing: the Redis client is owned by the caller and stream
// consumers stop with their subscription contexts.
func (b *StreamsBus) Close() error {
	return nil
}

// getStreamKey returns the Redis stream key for a topic.
func getStreamKey(topic string) string {
	return fmt.Sprintf("agentify:msg:%s", topic)
}
