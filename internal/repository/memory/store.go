// Package memory provides an in-memory implementation of repository.Store.
// It enforces the same uniqueness and conditional-update rules as the
// PostgreSQL schema and is used by service tests and local development.
package memory

import (
	"context"
	"sync"

	"carpool/internal/repository"
)

// Store is an in-memory repository.Store. Transactions are serialized on a
// single mutex and work on a copy of the data that replaces the committed
// state only when fn succeeds.
type Store struct {
	mu   sync.Mutex
	data *state
	repos
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{data: newState()}
	s.repos = newRepos(scope{store: s})
	return s
}

// WithinTx runs fn against a private copy of the data. The copy is
// committed when fn returns nil and discarded otherwise. Repositories
// obtained from the Store itself must not be used inside fn.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	txRepos := newRepos(scope{tx: working})

	if err := fn(&txRepos); err != nil {
		return err
	}

	s.data = working
	return nil
}

// scope decides which copy of the data a repository works on. Repositories
// bound to a transaction use its working copy; the others lock the store
// for the duration of each call.
type scope struct {
	store *Store
	tx    *state
}

func (sc scope) run(fn func(st *state) error) error {
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	return fn(sc.store.data)
}

type repos struct {
	trips    *TripRepository
	requests *RequestRepository
	sessions *SessionRepository
	offers   *OfferRepository
	bookings *BookingRepository
	outbox   *OutboxRepository
}

func newRepos(sc scope) repos {
	return repos{
		trips:    &TripRepository{sc: sc},
		requests: &RequestRepository{sc: sc},
		sessions: &SessionRepository{sc: sc},
		offers:   &OfferRepository{sc: sc},
		bookings: &BookingRepository{sc: sc},
		outbox:   &OutboxRepository{sc: sc},
	}
}

func (r *repos) Trips() repository.TripRepository       { return r.trips }
func (r *repos) Requests() repository.RequestRepository { return r.requests }
func (r *repos) Sessions() repository.SessionRepository { return r.sessions }
func (r *repos) Offers() repository.OfferRepository     { return r.offers }
func (r *repos) Bookings() repository.BookingRepository { return r.bookings }
func (r *repos) Outbox() repository.OutboxRepository    { return r.outbox }

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
