// Package kafka wraps segmentio/kafka-go. Producers publish JSON-encoded
// events; consumers hand each message to a MessageHandler and commit it once
// the handler succeeds.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is one message to publish. Key drives partition hashing; Value is
// JSON-encoded.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON events to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for topic. Query events are fire-and-forget,
// so the writer batches asynchronously and only needs the leader's ack.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	logger := slog.Default().With("component", "kafka-producer", "topic", topic)
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			logger.Warn("async publish failed", "count", len(messages), "error", err)
		}
	}
	return &Producer{writer: w, logger: logger}
}

// Publish encodes and enqueues a single event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes events and writes them in one call.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publishing %d events to kafka: %w", len(messages), err)
	}
	p.logger.Debug("events published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
