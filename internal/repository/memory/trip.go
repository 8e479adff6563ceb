package memory

import (
	"context"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// TripRepository is an in-memory repository.TripRepository.
type TripRepository struct {
	sc scope
}

// Create persists a new trip.
func (r *TripRepository) Create(_ context.Context, trip *domain.Trip) error {
	return r.sc.run(func(st *state) error {
		if _, ok := st.trips[trip.ID]; ok {
			return repository.ErrDuplicate
		}
		st.trips[trip.ID] = *trip
		return nil
	})
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(_ context.Context, id string) (*domain.Trip, error) {
	var out *domain.Trip
	err := r.sc.run(func(st *state) error {
		t, ok := st.trips[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

// ReserveSeats takes n seats if the trip is published and has enough left.
func (r *TripRepository) ReserveSeats(_ context.Context, tripID string, n int) (bool, error) {
	var reserved bool
	err := r.sc.run(func(st *state) error {
		t, ok := st.trips[tripID]
		if !ok || t.Status != domain.TripStatusPublished || t.SeatsAvailable < n {
			return nil
		}
		t.SeatsAvailable -= n
		st.trips[tripID] = t
		reserved = true
		return nil
	})
	return reserved, err
}

// ReleaseSeats returns n seats, capped at the trip total.
func (r *TripRepository) ReleaseSeats(_ context.Context, tripID string, n int) error {
	return r.sc.run(func(st *state) error {
		t, ok := st.trips[tripID]
		if !ok {
			return repository.ErrNotFound
		}
		t.SeatsAvailable = min(t.SeatsTotal, t.SeatsAvailable+n)
		st.trips[tripID] = t
		return nil
	})
}

var _ repository.TripRepository = (*TripRepository)(nil)
