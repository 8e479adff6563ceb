package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// EventSpec describes an event to append to the outbox.
type EventSpec struct {
	Topic          string
	AggregateType  string
	AggregateID    string
	Payload        any
	IdempotencyKey string
}

// OutboxWriter appends events inside the caller's unit of work, so an event
// commits if and only if the domain change it describes commits.
type OutboxWriter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewOutboxWriter creates a new OutboxWriter.
func NewOutboxWriter(logger *zap.Logger) *OutboxWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxWriter{logger: logger, now: time.Now}
}

// Enqueue writes spec through tx. An idempotency key that already exists is
// treated as success.
func (w *OutboxWriter) Enqueue(ctx context.Context, tx repository.Tx, spec EventSpec) error {
	payload, err := json.Marshal(spec.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", spec.Topic, err)
	}

	event := &domain.OutboxEvent{
		ID:             uuid.New().String(),
		Topic:          spec.Topic,
		AggregateType:  spec.AggregateType,
		AggregateID:    spec.AggregateID,
		Payload:        payload,
		Status:         domain.OutboxStatusNew,
		IdempotencyKey: spec.IdempotencyKey,
		CreatedAt:      w.now(),
	}

	inserted, err := tx.Outbox().Insert(ctx, event)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", spec.Topic, err)
	}
	if !inserted {
		w.logger.Debug("outbox event already recorded",
			zap.String("topic", spec.Topic),
			zap.String("idempotency_key", spec.IdempotencyKey),
		)
	}

	return nil
}
