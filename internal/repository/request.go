package repository

import (
	"context"

	"carpool/internal/domain"
)

// RequestRepository defines the persistence operations for trip requests.
type RequestRepository interface {
	// Create persists a new request. Returns ErrDuplicate when the passenger
	// already holds a non-canceled request for the trip.
	Create(ctx context.Context, req *domain.TripRequest) error

	// GetByID retrieves a request by ID.
	GetByID(ctx context.Context, id string) (*domain.TripRequest, error)

	// LockByID retrieves a request and holds a row lock on it until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id string) (*domain.TripRequest, error)

	// Update writes the mutable fields of a request.
	Update(ctx context.Context, req *domain.TripRequest) error

	// ListPendingByTrip returns the IDs of pending requests for a trip.
	ListPendingByTrip(ctx context.Context, tripID string) ([]string, error)

	// ListByPassenger returns a page of the passenger's requests, newest
	// first, and the total number of matches.
	ListByPassenger(ctx context.Context, passengerID string, f ListFilter) ([]*domain.TripRequest, int, error)

	// ListByDriver returns a page of requests made on the driver's trips,
	// newest first, and the total number of matches.
	ListByDriver(ctx context.Context, driverID string, f ListFilter) ([]*domain.TripRequest, int, error)
}
