package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Message is an outbox event as handed to a delivery channel. ID is stable
// across redeliveries and is the channel-side deduplication key.
type Message struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Attempt        int             `json:"attempt"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Publisher delivers messages to a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// DispatcherConfig controls leasing and retries.
type DispatcherConfig struct {
	InstanceID  string
	Interval    time.Duration
	BatchSize   int
	LeaseTTL    time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// BatchResult summarizes one dispatcher pass.
type BatchResult struct {
	Reclaimed int64
	Leased    int
	Delivered int
	Retried   int
	Failed    int
}

// failedEventType is the New Relic custom event recorded for terminal failures.
const failedEventType = "OutboxEventFailed"

// Dispatcher leases pending outbox events and forwards them to a Publisher.
// Several dispatchers may run against the same table; leases keep their
// batches disjoint and expired leases are reclaimed on every pass.
type Dispatcher struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	cfg       DispatcherConfig
	nrApp     *newrelic.Application
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a new Dispatcher. nrApp may be nil.
func NewDispatcher(
	outbox repository.OutboxRepository,
	publisher Publisher,
	cfg DispatcherConfig,
	nrApp *newrelic.Application,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		nrApp:     nrApp,
		logger:    logger.With(zap.String("instance_id", cfg.InstanceID)),
		now:       time.Now,
	}
}

// WithClock replaces the dispatcher's time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run dispatches immediately and then on every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	for {
		if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass: reclaim stale leases, lease a batch and
// deliver it.
func (d *Dispatcher) RunOnce(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	txn := d.nrApp.StartTransaction("outbox-dispatch")
	defer txn.End()
	ctx = newrelic.NewContext(ctx, txn)

	now := d.now()

	reclaimed, err := d.outbox.ReclaimStale(ctx, now.Add(-d.cfg.LeaseTTL))
	if err != nil {
		txn.NoticeError(err)
		return res, err
	}
	res.Reclaimed = reclaimed
	if reclaimed > 0 {
		d.logger.Warn("reclaimed stale outbox leases", zap.Int64("count", reclaimed))
	}

	events, err := d.outbox.LeaseBatch(ctx, d.cfg.InstanceID, now, d.cfg.BatchSize)
	if err != nil {
		txn.NoticeError(err)
		return res, err
	}
	res.Leased = len(events)

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			// Unprocessed leases are reclaimed once they expire.
			return res, err
		}
		if err := d.dispatch(ctx, event, &res); err != nil {
			txn.NoticeError(err)
			return res, err
		}
	}

	txn.AddAttribute("leased", res.Leased)
	txn.AddAttribute("delivered", res.Delivered)
	txn.AddAttribute("retried", res.Retried)
	txn.AddAttribute("failed", res.Failed)

	if res.Leased > 0 {
		d.logger.Info("outbox batch dispatched",
			zap.Int("leased", res.Leased),
			zap.Int("delivered", res.Delivered),
			zap.Int("retried", res.Retried),
			zap.Int("failed", res.Failed),
		)
	}

	return res, nil
}

// dispatch delivers one leased event and records the outcome. The returned
// error is a store failure; delivery failures are recorded on the event.
func (d *Dispatcher) dispatch(ctx context.Context, event *domain.OutboxEvent, res *BatchResult) error {
	msg := Message{
		ID:             event.ID,
		Topic:          event.Topic,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		IdempotencyKey: event.IdempotencyKey,
		Attempt:        event.Attempts + 1,
		Payload:        json.RawMessage(event.Payload),
		CreatedAt:      event.CreatedAt,
	}

	pubErr := d.publisher.Publish(ctx, msg)
	if pubErr == nil {
		ok, err := d.outbox.MarkDone(ctx, event.ID, d.cfg.InstanceID, d.now())
		if err != nil {
			return err
		}
		if !ok {
			d.logger.Warn("outbox lease lost before completion", zap.String("event_id", event.ID))
			return nil
		}
		res.Delivered++
		return nil
	}

	attempts := event.Attempts + 1
	lastErr := pubErr.Error()

	if attempts >= d.cfg.MaxAttempts {
		ok, err := d.outbox.MarkFailed(ctx, event.ID, d.cfg.InstanceID, attempts, lastErr, d.now())
		if err != nil {
			return err
		}
		if !ok {
			d.logger.Warn("outbox lease lost before failure was recorded", zap.String("event_id", event.ID))
			return nil
		}
		res.Failed++

		d.logger.Error("outbox event failed permanently",
			zap.String("event_id", event.ID),
			zap.String("topic", event.Topic),
			zap.String("aggregate_id", event.AggregateID),
			zap.Int("attempts", attempts),
			zap.Error(pubErr),
		)
		d.nrApp.RecordCustomEvent(failedEventType, map[string]any{
			"eventId":     event.ID,
			"topic":       event.Topic,
			"aggregateId": event.AggregateID,
			"attempts":    attempts,
			"lastError":   lastErr,
		})
		return nil
	}

	delay := Backoff(attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff)
	ok, err := d.outbox.MarkRetry(ctx, event.ID, d.cfg.InstanceID, attempts, d.now().Add(delay), lastErr)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Warn("outbox lease lost before retry was scheduled", zap.String("event_id", event.ID))
		return nil
	}
	res.Retried++

	d.logger.Warn("outbox delivery failed, retry scheduled",
		zap.String("event_id", event.ID),
		zap.String("topic", event.Topic),
		zap.Int("attempts", attempts),
		zap.Duration("retry_in", delay),
		zap.Error(pubErr),
	)
	return nil
}

// OutboxAdmin exposes the operator actions on the outbox.
type OutboxAdmin struct {
	outbox repository.OutboxRepository
	logger *zap.Logger
}

// NewOutboxAdmin creates a new OutboxAdmin.
func NewOutboxAdmin(outbox repository.OutboxRepository, logger *zap.Logger) *OutboxAdmin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxAdmin{outbox: outbox, logger: logger}
}

// ListFailed returns events that exhausted their retries, oldest first.
func (a *OutboxAdmin) ListFailed(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return a.outbox.ListByStatus(ctx, domain.OutboxStatusFailed, limit)
}

// Requeue moves a failed event back to the queue with its attempts reset.
func (a *OutboxAdmin) Requeue(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}

	ok, err := a.outbox.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := a.outbox.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrEventNotFailed
	}

	a.logger.Info("outbox event requeued", zap.String("event_id", id))
	return a.outbox.GetByID(ctx, id)
}
