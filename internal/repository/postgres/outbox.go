package postgres

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// OutboxRepository is a PostgreSQL implementation of repository.OutboxRepository.
type OutboxRepository struct {
	q Querier
}

// NewOutboxRepository creates a new PostgreSQL outbox repository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{q: db}
}

// NewOutboxRepositoryWithTx creates an outbox repository using a transaction,
// so events commit together with the domain change they describe.
func NewOutboxRepositoryWithTx(tx *sql.Tx) *OutboxRepository {
	return &OutboxRepository{q: tx}
}

const outboxColumns = `id, topic, aggregate_type, aggregate_id, payload, status, attempts, next_retry_at, locked_by, locked_at, last_error, idempotency_key, created_at, processed_at`

// Insert stores a new event, ignoring idempotency key collisions.
func (r *OutboxRepository) Insert(ctx context.Context, e *domain.OutboxEvent) (bool, error) {
	query := `
		INSERT INTO outbox_events (id, topic, aggregate_type, aggregate_id, payload, status, attempts, next_retry_at, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		e.ID,
		e.Topic,
		e.AggregateType,
		e.AggregateID,
		string(e.Payload), // lib/pq sends []byte as bytea, which jsonb rejects
		e.Status,
		e.Attempts,
		nullTime(e.NextRetryAt),
		nullString(e.IdempotencyKey),
		e.CreatedAt,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// GetByID retrieves an event by ID.
func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1`
	return scanOutboxEvent(r.q.QueryRowContext(ctx, query, id))
}

// ReclaimStale returns expired leases to the new state.
func (r *OutboxRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, locked_by = NULL, locked_at = NULL
		WHERE status = $2 AND locked_at < $3
	`

	result, err := r.q.ExecContext(ctx, query, domain.OutboxStatusNew, domain.OutboxStatusProcessing, cutoff)
	if err != nil {
		return 0, translateError(err)
	}

	return result.RowsAffected()
}

// LeaseBatch claims due events in a single statement. SKIP LOCKED lets
// concurrent dispatchers pick disjoint batches instead of queueing on rows.
func (r *OutboxRepository) LeaseBatch(ctx context.Context, owner string, now time.Time, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, locked_by = $2, locked_at = $3
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $4 AND (next_retry_at IS NULL OR next_retry_at <= $3)
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		) AND status = $4
		RETURNING ` + outboxColumns

	rows, err := r.q.QueryContext(ctx, query,
		domain.OutboxStatusProcessing,
		owner,
		now,
		domain.OutboxStatusNew,
		limit,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}

// MarkDone completes an event still leased by owner.
func (r *OutboxRepository) MarkDone(ctx context.Context, id, owner string, at time.Time) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, locked_by = NULL, locked_at = NULL, last_error = NULL, processed_at = $2
		WHERE id = $3 AND status = $4 AND locked_by = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.OutboxStatusDone,
		at,
		id,
		domain.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// MarkRetry schedules another delivery attempt.
func (r *OutboxRepository) MarkRetry(ctx context.Context, id, owner string, attempts int, nextRetryAt time.Time, lastErr string) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = $2, next_retry_at = $3, last_error = $4, locked_by = NULL, locked_at = NULL
		WHERE id = $5 AND status = $6 AND locked_by = $7
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.OutboxStatusNew,
		attempts,
		nextRetryAt,
		nullString(lastErr),
		id,
		domain.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// MarkFailed moves an event to the terminal failed state.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, owner string, attempts int, lastErr string, at time.Time) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = $2, last_error = $3, processed_at = $4, locked_by = NULL, locked_at = NULL
		WHERE id = $5 AND status = $6 AND locked_by = $7
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.OutboxStatusFailed,
		attempts,
		nullString(lastErr),
		at,
		id,
		domain.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// ListByStatus returns events in the given status, oldest first.
func (r *OutboxRepository) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE status = $1 ORDER BY created_at LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Requeue moves a failed event back to new.
func (r *OutboxRepository) Requeue(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = 0, next_retry_at = NULL, last_error = NULL, processed_at = NULL
		WHERE id = $2 AND status = $3
	`

	result, err := r.q.ExecContext(ctx, query, domain.OutboxStatusNew, id, domain.OutboxStatusFailed)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

func scanOutboxEvent(s scanner) (*domain.OutboxEvent, error) {
	var e domain.OutboxEvent
	var nextRetryAt, lockedAt, processedAt sql.NullTime
	var lockedBy, lastError, idempotencyKey sql.NullString

	err := s.Scan(
		&e.ID,
		&e.Topic,
		&e.AggregateType,
		&e.AggregateID,
		&e.Payload,
		&e.Status,
		&e.Attempts,
		&nextRetryAt,
		&lockedBy,
		&lockedAt,
		&lastError,
		&idempotencyKey,
		&e.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	if nextRetryAt.Valid {
		e.NextRetryAt = nextRetryAt.Time
	}
	if lockedAt.Valid {
		e.LockedAt = lockedAt.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = processedAt.Time
	}
	e.LockedBy = lockedBy.String
	e.LastError = lastError.String
	e.IdempotencyKey = idempotencyKey.String

	return &e, nil
}

// Ensure OutboxRepository implements repository.OutboxRepository.
var _ repository.OutboxRepository = (*OutboxRepository)(nil)
