package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `id, trip_id, request_id, passenger_id, seats, price, currency, status, cancel_reason, canceled_at, cancellation_fee, refund_amount, created_at`

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		b.ID,
		b.TripID,
		b.RequestID,
		b.PassengerID,
		b.Seats,
		b.Price,
		b.Currency,
		b.Status,
		nullString(b.CancelReason),
		nullTime(b.CanceledAt),
		b.CancellationFee,
		b.RefundAmount,
		b.CreatedAt,
	)

	return translateError(err)
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

// GetByRequestID retrieves the booking created for a request.
func (r *BookingRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE request_id = $1`
	return scanBooking(r.q.QueryRowContext(ctx, query, requestID))
}

// Cancel marks a confirmed or paid booking as canceled.
func (r *BookingRepository) Cancel(ctx context.Context, id string, c domain.BookingCancellation) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $1, cancel_reason = $2, canceled_at = $3,
		    cancellation_fee = $4, refund_amount = $5
		WHERE id = $6 AND status IN ($7, $8)
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.BookingStatusCanceled,
		nullString(c.Reason),
		c.At,
		c.Fee,
		c.Refund,
		id,
		domain.BookingStatusConfirmed,
		domain.BookingStatusPaid,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// ListByPassenger returns a page of the passenger's bookings, newest first.
func (r *BookingRepository) ListByPassenger(ctx context.Context, passengerID string, f repository.ListFilter) ([]*domain.Booking, int, error) {
	return listRows(ctx, r.q, "bookings", bookingColumns, ownedByPassenger, passengerID, f, scanBooking)
}

// ListByDriver returns a page of bookings on the driver's trips.
func (r *BookingRepository) ListByDriver(ctx context.Context, driverID string, f repository.ListFilter) ([]*domain.Booking, int, error) {
	return listRows(ctx, r.q, "bookings", bookingColumns, ownedByDriver, driverID, f, scanBooking)
}

func scanBooking(s scanner) (*domain.Booking, error) {
	var b domain.Booking
	var cancelReason sql.NullString
	var canceledAt sql.NullTime

	err := s.Scan(
		&b.ID,
		&b.TripID,
		&b.RequestID,
		&b.PassengerID,
		&b.Seats,
		&b.Price,
		&b.Currency,
		&b.Status,
		&cancelReason,
		&canceledAt,
		&b.CancellationFee,
		&b.RefundAmount,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	b.CancelReason = cancelReason.String
	if canceledAt.Valid {
		b.CanceledAt = canceledAt.Time
	}

	return &b, nil
}

// Ensure BookingRepository implements repository.BookingRepository.
var _ repository.BookingRepository = (*BookingRepository)(nil)
