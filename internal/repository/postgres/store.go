package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carpool/internal/repository"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	repos
}

// NewStore creates a Store. A positive lockTimeout bounds how long a
// transaction waits for row locks before failing with ErrLockTimeout.
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{
		db:          db,
		lockTimeout: lockTimeout,
		repos: repos{
			trips:    NewTripRepository(db),
			requests: NewRequestRepository(db),
			sessions: NewSessionRepository(db),
			offers:   NewOfferRepository(db),
			bookings: NewBookingRepository(db),
			outbox:   NewOutboxRepository(db),
		},
	}
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	// Create transaction-scoped repositories.
	txRepos := &repos{
		trips:    NewTripRepositoryWithTx(tx),
		requests: NewRequestRepositoryWithTx(tx),
		sessions: NewSessionRepositoryWithTx(tx),
		offers:   NewOfferRepositoryWithTx(tx),
		bookings: NewBookingRepositoryWithTx(tx),
		outbox:   NewOutboxRepositoryWithTx(tx),
	}

	if err = fn(txRepos); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

type repos struct {
	trips    *TripRepository
	requests *RequestRepository
	sessions *SessionRepository
	offers   *OfferRepository
	bookings *BookingRepository
	outbox   *OutboxRepository
}

func (r *repos) Trips() repository.TripRepository       { return r.trips }
func (r *repos) Requests() repository.RequestRepository { return r.requests }
func (r *repos) Sessions() repository.SessionRepository { return r.sessions }
func (r *repos) Offers() repository.OfferRepository     { return r.offers }
func (r *repos) Bookings() repository.BookingRepository { return r.bookings }
func (r *repos) Outbox() repository.OutboxRepository    { return r.outbox }

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
