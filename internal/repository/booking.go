package repository

import (
	"context"

	"carpool/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking. Returns ErrDuplicate if the request
	// already has a booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByRequestID retrieves the booking created for a request.
	GetByRequestID(ctx context.Context, requestID string) (*domain.Booking, error)

	// Cancel marks a seat-holding booking as canceled and records the fee
	// and refund. It reports false if the booking was not confirmed or paid.
	Cancel(ctx context.Context, id string, c domain.BookingCancellation) (bool, error)

	// ListByPassenger returns a page of the passenger's bookings, newest
	// first, and the total number of matches.
	ListByPassenger(ctx context.Context, passengerID string, f ListFilter) ([]*domain.Booking, int, error)

	// ListByDriver returns a page of bookings on the driver's trips, newest
	// first, and the total number of matches.
	ListByDriver(ctx context.Context, driverID string, f ListFilter) ([]*domain.Booking, int, error)
}
