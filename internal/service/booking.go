package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// BookingTransactor is the only code path that turns an agreed price into
// a reservation. Seats move exclusively through the trip's conditional
// reserve/release updates, never through read-then-write.
type BookingTransactor struct {
	now func() time.Time
}

// NewBookingTransactor creates a new BookingTransactor.
func NewBookingTransactor() *BookingTransactor {
	return &BookingTransactor{now: time.Now}
}

// Reserve takes seats from the trip if enough are left and the trip is
// bookable. A false result means the caller lost the race or the trip
// filled up; both surface as ErrInsufficientCapacity.
func (t *BookingTransactor) Reserve(ctx context.Context, tx repository.Tx, tripID string, seats int) (bool, error) {
	return tx.Trips().ReserveSeats(ctx, tripID, seats)
}

// Release returns seats to the trip.
func (t *BookingTransactor) Release(ctx context.Context, tx repository.Tx, tripID string, seats int) error {
	return tx.Trips().ReleaseSeats(ctx, tripID, seats)
}

// Book reserves the request's seats and records a confirmed booking at price.
func (t *BookingTransactor) Book(ctx context.Context, tx repository.Tx, req *domain.TripRequest, price int64) (*domain.Booking, error) {
	ok, err := t.Reserve(ctx, tx, req.TripID, req.Seats)
	if err != nil {
		return nil, fmt.Errorf("reserve seats: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientCapacity
	}

	booking := &domain.Booking{
		ID:          uuid.New().String(),
		TripID:      req.TripID,
		RequestID:   req.ID,
		PassengerID: req.PassengerID,
		Seats:       req.Seats,
		Price:       price,
		Currency:    req.Currency,
		Status:      domain.BookingStatusConfirmed,
		CreatedAt:   t.now(),
	}

	if err := tx.Bookings().Create(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRequestNotPending
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	return booking, nil
}

// BookingService handles booking operations outside of negotiation.
type BookingService struct {
	store            repository.Store
	transactor       *BookingTransactor
	outbox           *OutboxWriter
	cancelFeePercent int
	logger           *zap.Logger
	now              func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	store repository.Store,
	transactor *BookingTransactor,
	outbox *OutboxWriter,
	cancelFeePercent int,
	logger *zap.Logger,
) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		store:            store,
		transactor:       transactor,
		outbox:           outbox,
		cancelFeePercent: cancelFeePercent,
		logger:           logger,
		now:              time.Now,
	}
}

// CancelBooking cancels a confirmed or paid booking, returns its seats to
// the trip and closes the request it came from. Either the passenger or the
// trip's driver may cancel. A passenger canceling pays the configured fee
// and cannot cancel once the trip has started; a driver refunds in full and
// cannot cancel a completed trip.
func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Actor, bookingID, reason string) (*domain.Booking, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	var canceled *domain.Booking
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		booking, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}

		trip, err := tx.Trips().GetByID(ctx, booking.TripID)
		if err != nil {
			return err
		}

		switch {
		case actor.Side == domain.SidePassenger && booking.PassengerID == actor.UserID:
			if trip.Status == domain.TripStatusStarted || trip.Status == domain.TripStatusCompleted {
				return ErrTripDeparted
			}
		case actor.Side == domain.SideDriver && trip.DriverID == actor.UserID:
			if trip.Status == domain.TripStatusCompleted {
				return ErrTripDeparted
			}
		default:
			return ErrNotParticipant
		}

		now := s.now()
		cancellation := booking.Cancellation(actor.Side, s.cancelFeePercent, reason, now)
		ok, err := tx.Bookings().Cancel(ctx, booking.ID, cancellation)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookingNotActive
		}

		if err := s.transactor.Release(ctx, tx, booking.TripID, booking.Seats); err != nil {
			return fmt.Errorf("release seats: %w", err)
		}

		if err := s.closeRequest(ctx, tx, booking.RequestID, reason, now); err != nil {
			return fmt.Errorf("close request: %w", err)
		}

		booking.Status = domain.BookingStatusCanceled
		booking.CancelReason = reason
		booking.CanceledAt = now
		booking.CancellationFee = cancellation.Fee
		booking.RefundAmount = cancellation.Refund

		event := BookingEvent{
			BookingID:   booking.ID,
			RequestID:   booking.RequestID,
			TripID:      booking.TripID,
			PassengerID: booking.PassengerID,
			DriverID:    trip.DriverID,
			Seats:       booking.Seats,
			Price:       booking.Price,
			Currency:    booking.Currency,
			CanceledBy:  actor.Side,
			Reason:      reason,

			CancellationFee: cancellation.Fee,
			RefundAmount:    cancellation.Refund,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.spec(domain.TopicBookingCanceled)); err != nil {
			return err
		}

		canceled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking canceled",
		zap.String("booking_id", canceled.ID),
		zap.String("trip_id", canceled.TripID),
		zap.Int("seats", canceled.Seats),
		zap.String("canceled_by", string(actor.Side)),
		zap.Int64("cancellation_fee", canceled.CancellationFee),
		zap.Int64("refund_amount", canceled.RefundAmount),
	)

	return canceled, nil
}

// closeRequest marks the accepted request behind a canceled booking as
// canceled, which lets the passenger request the trip again.
func (s *BookingService) closeRequest(ctx context.Context, tx repository.Tx, requestID, reason string, now time.Time) error {
	req, err := tx.Requests().LockByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == domain.RequestStatusCanceled {
		return nil
	}

	req.Status = domain.RequestStatusCanceled
	req.RejectionReason = reason
	req.RespondedAt = now
	return tx.Requests().Update(ctx, req)
}

// GetBooking returns a booking visible to actor.
func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Side == domain.SidePassenger && booking.PassengerID == actor.UserID {
		return booking, nil
	}

	trip, err := s.store.Trips().GetByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	if actor.Side == domain.SideDriver && trip.DriverID == actor.UserID {
		return booking, nil
	}
	return nil, ErrNotParticipant
}

// ListMyBookings returns a page of the passenger's bookings.
func (s *BookingService) ListMyBookings(ctx context.Context, passengerID string, q ListQuery) (*Page[*domain.Booking], error) {
	if passengerID == "" {
		return nil, ErrInvalidActor
	}
	f, err := q.filter(bookingStatuses)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.Bookings().ListByPassenger(ctx, passengerID, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, q), nil
}

// ListDriverBookings returns a page of bookings on the driver's trips.
func (s *BookingService) ListDriverBookings(ctx context.Context, driverID string, q ListQuery) (*Page[*domain.Booking], error) {
	if driverID == "" {
		return nil, ErrInvalidActor
	}
	f, err := q.filter(bookingStatuses)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.Bookings().ListByDriver(ctx, driverID, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, q), nil
}
