// Package messaging delivers outbox messages to Kafka.
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"carpool/internal/service"
)

// Kafka header names set on every message.
const (
	HeaderEventID        = "event-id"
	HeaderIdempotencyKey = "idempotency-key"
	HeaderAggregateType  = "aggregate-type"
	HeaderAttempt        = "attempt"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox messages to one Kafka topic per event topic.
// Messages are keyed by aggregate id so events of one aggregate share a
// partition; the event id travels in the idempotency-key header for
// consumer-side deduplication.
type KafkaPublisher struct {
	writer      MessageWriter
	topicPrefix string
}

// NewKafkaWriter creates a writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher creates a new KafkaPublisher.
func NewKafkaPublisher(writer MessageWriter, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topicPrefix: topicPrefix}
}

// Publish writes msg and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, msg service.Message) error {
	km := kafka.Message{
		Topic: p.topicPrefix + msg.Topic,
		Key:   []byte(msg.AggregateID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(msg.ID)},
			{Key: HeaderIdempotencyKey, Value: []byte(msg.ID)},
			{Key: HeaderAggregateType, Value: []byte(msg.AggregateType)},
			{Key: HeaderAttempt, Value: []byte(strconv.Itoa(msg.Attempt))},
		},
		Time: msg.CreatedAt,
	}

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka write %s: %w", km.Topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ service.Publisher = (*KafkaPublisher)(nil)
