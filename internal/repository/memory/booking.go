package memory

import (
	"context"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// BookingRepository is an in-memory repository.BookingRepository.
type BookingRepository struct {
	sc scope
}

// Create persists a new booking, one per request.
func (r *BookingRepository) Create(_ context.Context, b *domain.Booking) error {
	return r.sc.run(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return repository.ErrDuplicate
		}
		for _, existing := range st.bookings {
			if existing.RequestID == b.RequestID {
				return repository.ErrDuplicate
			}
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.sc.run(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

// GetByRequestID retrieves the booking created for a request.
func (r *BookingRepository) GetByRequestID(_ context.Context, requestID string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.sc.run(func(st *state) error {
		for _, b := range st.bookings {
			if b.RequestID == requestID {
				b := b
				out = &b
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

// Cancel marks a seat-holding booking as canceled.
func (r *BookingRepository) Cancel(_ context.Context, id string, c domain.BookingCancellation) (bool, error) {
	var canceled bool
	err := r.sc.run(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok || !b.HoldsSeats() {
			return nil
		}
		b.Status = domain.BookingStatusCanceled
		b.CancelReason = c.Reason
		b.CanceledAt = c.At
		b.CancellationFee = c.Fee
		b.RefundAmount = c.Refund
		st.bookings[id] = b
		canceled = true
		return nil
	})
	return canceled, err
}

// ListByPassenger returns a page of the passenger's bookings, newest first.
func (r *BookingRepository) ListByPassenger(_ context.Context, passengerID string, f repository.ListFilter) ([]*domain.Booking, int, error) {
	return r.list(f, func(_ *state, b domain.Booking) bool {
		return b.PassengerID == passengerID
	})
}

// ListByDriver returns a page of bookings on the driver's trips.
func (r *BookingRepository) ListByDriver(_ context.Context, driverID string, f repository.ListFilter) ([]*domain.Booking, int, error) {
	return r.list(f, func(st *state, b domain.Booking) bool {
		return st.trips[b.TripID].DriverID == driverID
	})
}

func (r *BookingRepository) list(f repository.ListFilter, owned func(*state, domain.Booking) bool) ([]*domain.Booking, int, error) {
	var found []domain.Booking
	err := r.sc.run(func(st *state) error {
		for _, b := range st.bookings {
			if owned(st, b) && matches(f, b.TripID, string(b.Status)) {
				found = append(found, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	items, total := page(found, f,
		func(b *domain.Booking) time.Time { return b.CreatedAt },
		func(b *domain.Booking) string { return b.ID })
	return items, total, nil
}

var _ repository.BookingRepository = (*BookingRepository)(nil)
