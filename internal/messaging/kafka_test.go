package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/messaging"
	"carpool/internal/service"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	pub := messaging.NewKafkaPublisher(w, "carpool.")
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := pub.Publish(context.Background(), service.Message{
		ID:            "evt-42",
		Topic:         "offer.accepted",
		AggregateType: "offer",
		AggregateID:   "offer-7",
		Attempt:       3,
		Payload:       []byte(`{"price":98000}`),
		CreatedAt:     created,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	m := w.messages[0]
	assert.Equal(t, "carpool.offer.accepted", m.Topic)
	assert.Equal(t, "offer-7", string(m.Key))
	assert.JSONEq(t, `{"price":98000}`, string(m.Value))
	assert.Equal(t, "evt-42", header(m, messaging.HeaderIdempotencyKey))
	assert.Equal(t, "evt-42", header(m, messaging.HeaderEventID))
	assert.Equal(t, "3", header(m, messaging.HeaderAttempt))
	assert.Equal(t, created, m.Time)
}

func TestKafkaPublisher_WrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	pub := messaging.NewKafkaPublisher(w, "")

	err := pub.Publish(context.Background(), service.Message{ID: "evt-1", Topic: "offer.created"})
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
	assert.Contains(t, err.Error(), "offer.created")

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}
