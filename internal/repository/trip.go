package repository

import (
	"context"

	"carpool/internal/domain"
)

// TripRepository defines the persistence operations for trips and their
// seat ledger.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// ReserveSeats decrements available seats by n only if at least n seats
	// are left and the trip is published. It reports whether the row changed.
	ReserveSeats(ctx context.Context, tripID string, n int) (bool, error)

	// ReleaseSeats returns n seats to the trip, never above its total.
	ReleaseSeats(ctx context.Context, tripID string, n int) error
}
