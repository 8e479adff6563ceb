package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// OutboxRepository is an in-memory repository.OutboxRepository.
type OutboxRepository struct {
	sc scope
}

// Insert stores a new event unless its idempotency key is already taken.
func (r *OutboxRepository) Insert(_ context.Context, e *domain.OutboxEvent) (bool, error) {
	var inserted bool
	err := r.sc.run(func(st *state) error {
		if _, ok := st.outbox[e.ID]; ok {
			return repository.ErrDuplicate
		}
		if e.IdempotencyKey != "" {
			if _, ok := st.outboxKeys[e.IdempotencyKey]; ok {
				return nil
			}
			st.outboxKeys[e.IdempotencyKey] = e.ID
		}
		st.outbox[e.ID] = *e
		st.outboxOrder = append(st.outboxOrder, e.ID)
		inserted = true
		return nil
	})
	return inserted, err
}

// GetByID retrieves an event by ID.
func (r *OutboxRepository) GetByID(_ context.Context, id string) (*domain.OutboxEvent, error) {
	var out *domain.OutboxEvent
	err := r.sc.run(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

// ReclaimStale returns expired leases to new.
func (r *OutboxRepository) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.sc.run(func(st *state) error {
		for id, e := range st.outbox {
			if e.Status != domain.OutboxStatusProcessing || !e.LockedAt.Before(cutoff) {
				continue
			}
			e.Status = domain.OutboxStatusNew
			e.LockedBy = ""
			e.LockedAt = time.Time{}
			st.outbox[id] = e
			n++
		}
		return nil
	})
	return n, err
}

// LeaseBatch claims up to limit due events, oldest first.
func (r *OutboxRepository) LeaseBatch(_ context.Context, owner string, now time.Time, limit int) ([]*domain.OutboxEvent, error) {
	var leased []*domain.OutboxEvent
	err := r.sc.run(func(st *state) error {
		for _, id := range st.ordered() {
			if len(leased) >= limit {
				break
			}
			e := st.outbox[id]
			if e.Status != domain.OutboxStatusNew || e.NextRetryAt.After(now) {
				continue
			}
			e.Status = domain.OutboxStatusProcessing
			e.LockedBy = owner
			e.LockedAt = now
			st.outbox[id] = e
			leased = append(leased, &e)
		}
		return nil
	})
	return leased, err
}

// MarkDone completes an event still leased by owner.
func (r *OutboxRepository) MarkDone(_ context.Context, id, owner string, at time.Time) (bool, error) {
	return r.update(id, owner, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusDone
		e.LastError = ""
		e.ProcessedAt = at
	})
}

// MarkRetry schedules another delivery attempt.
func (r *OutboxRepository) MarkRetry(_ context.Context, id, owner string, attempts int, nextRetryAt time.Time, lastErr string) (bool, error) {
	return r.update(id, owner, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusNew
		e.Attempts = attempts
		e.NextRetryAt = nextRetryAt
		e.LastError = lastErr
	})
}

// MarkFailed moves an event to the terminal failed state.
func (r *OutboxRepository) MarkFailed(_ context.Context, id, owner string, attempts int, lastErr string, at time.Time) (bool, error) {
	return r.update(id, owner, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusFailed
		e.Attempts = attempts
		e.LastError = lastErr
		e.ProcessedAt = at
	})
}

// update applies fn to an event that is processing under owner and releases
// the lease.
func (r *OutboxRepository) update(id, owner string, fn func(e *domain.OutboxEvent)) (bool, error) {
	var changed bool
	err := r.sc.run(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok || e.Status != domain.OutboxStatusProcessing || e.LockedBy != owner {
			return nil
		}
		fn(&e)
		e.LockedBy = ""
		e.LockedAt = time.Time{}
		st.outbox[id] = e
		changed = true
		return nil
	})
	return changed, err
}

// ListByStatus returns events in the given status, oldest first.
func (r *OutboxRepository) ListByStatus(_ context.Context, status domain.OutboxStatus, limit int) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	err := r.sc.run(func(st *state) error {
		for _, id := range st.ordered() {
			if len(events) >= limit {
				break
			}
			e := st.outbox[id]
			if e.Status == status {
				events = append(events, &e)
			}
		}
		return nil
	})
	return events, err
}

// Requeue moves a failed event back to new with its attempts reset.
func (r *OutboxRepository) Requeue(_ context.Context, id string) (bool, error) {
	var requeued bool
	err := r.sc.run(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok || e.Status != domain.OutboxStatusFailed {
			return nil
		}
		e.Status = domain.OutboxStatusNew
		e.Attempts = 0
		e.NextRetryAt = time.Time{}
		e.LastError = ""
		e.ProcessedAt = time.Time{}
		st.outbox[id] = e
		requeued = true
		return nil
	})
	return requeued, err
}

// ordered returns outbox IDs by creation time, falling back to insertion order.
func (st *state) ordered() []string {
	ids := append([]string(nil), st.outboxOrder...)
	sort.SliceStable(ids, func(i, j int) bool {
		return st.outbox[ids[i]].CreatedAt.Before(st.outbox[ids[j]].CreatedAt)
	})
	return ids
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)
