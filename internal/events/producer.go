package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicUserEvents  = "user_events"
	TopicCartEvents  = "cart_events"
	TopicOrderEvents = "order_events"
)

// Publisher emits domain events. Publish failures must never fail the
// operation that produced the event; callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(address string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(address),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Nop is used when no broker is configured and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
