package repository

import (
	"context"
	"time"

	"carpool/internal/domain"
)

// OutboxRepository defines the persistence operations for outbox events.
type OutboxRepository interface {
	// Insert stores a new event. It reports false, without error, when an
	// event with the same idempotency key already exists.
	Insert(ctx context.Context, event *domain.OutboxEvent) (bool, error)

	// GetByID retrieves an event by ID.
	GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error)

	// ReclaimStale returns processing events leased before cutoff to new.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	// LeaseBatch moves up to limit due new events, oldest first, to
	// processing under owner and returns only the events this call won.
	LeaseBatch(ctx context.Context, owner string, now time.Time, limit int) ([]*domain.OutboxEvent, error)

	// MarkDone completes an event still leased by owner.
	MarkDone(ctx context.Context, id, owner string, at time.Time) (bool, error)

	// MarkRetry returns an event leased by owner to new with the given
	// attempt count, retry time and error.
	MarkRetry(ctx context.Context, id, owner string, attempts int, nextRetryAt time.Time, lastErr string) (bool, error)

	// MarkFailed moves an event leased by owner to the terminal failed state.
	MarkFailed(ctx context.Context, id, owner string, attempts int, lastErr string, at time.Time) (bool, error)

	// ListByStatus returns events in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]*domain.OutboxEvent, error)

	// Requeue moves a failed event back to new with its attempts reset.
	Requeue(ctx context.Context, id string) (bool, error)
}
