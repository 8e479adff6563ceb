package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RequestService handles the lifecycle of trip requests around the
// negotiation: creating, withdrawing, declining and directly accepting them.
type RequestService struct {
	store           repository.Store
	bookings        *BookingTransactor
	outbox          *OutboxWriter
	maxMovesPerSide int
	logger          *zap.Logger
	now             func() time.Time
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	store repository.Store,
	bookings *BookingTransactor,
	outbox *OutboxWriter,
	maxMovesPerSide int,
	logger *zap.Logger,
) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		store:           store,
		bookings:        bookings,
		outbox:          outbox,
		maxMovesPerSide: maxMovesPerSide,
		logger:          logger,
		now:             time.Now,
	}
}

// CreateRequestInput contains the parameters for creating a trip request.
type CreateRequestInput struct {
	TripID   string
	Seats    int
	Price    int64
	Currency string
	Message  string
}

// CreateRequest records a passenger's request for seats and opens its
// negotiation session.
func (s *RequestService) CreateRequest(ctx context.Context, passengerID string, in CreateRequestInput) (*domain.TripRequest, error) {
	if passengerID == "" {
		return nil, ErrInvalidActor
	}
	if in.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if in.Seats <= 0 {
		return nil, ErrInvalidSeats
	}
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	var created *domain.TripRequest

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		trip, err := tx.Trips().GetByID(ctx, in.TripID)
		if err != nil {
			return err
		}
		if !trip.IsBookable() {
			return ErrTripNotBookable
		}
		if trip.DriverID == passengerID {
			return ErrSelfRequest
		}
		// Early answer only; the seats are taken on acceptance.
		if in.Seats > trip.SeatsAvailable {
			return ErrInsufficientCapacity
		}

		now := s.now()
		req := &domain.TripRequest{
			ID:          uuid.New().String(),
			TripID:      trip.ID,
			PassengerID: passengerID,
			Seats:       in.Seats,
			Price:       in.Price,
			Currency:    currency,
			Message:     in.Message,
			Status:      domain.RequestStatusPending,
			CreatedAt:   now,
		}
		if err := tx.Requests().Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateRequest
			}
			return err
		}

		session := domain.NewNegotiationSession(req.ID, s.maxMovesPerSide, now)
		if err := tx.Sessions().Create(ctx, session); err != nil {
			return fmt.Errorf("open negotiation: %w", err)
		}

		if err := s.outbox.Enqueue(ctx, tx, newRequestEvent(req, trip).spec(domain.TopicRequestCreated)); err != nil {
			return err
		}

		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trip request created",
		zap.String("request_id", created.ID),
		zap.String("trip_id", created.TripID),
		zap.Int("seats", created.Seats),
	)

	return created, nil
}

// GetRequest returns a request visible to actor.
func (s *RequestService) GetRequest(ctx context.Context, actor domain.Actor, requestID string) (*domain.TripRequest, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}

	req, err := s.store.Requests().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	trip, err := s.store.Trips().GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(actor, req, trip) {
		return nil, ErrNotParticipant
	}
	return req, nil
}

// CancelRequest withdraws a pending request on behalf of its passenger and
// closes the negotiation. Canceling twice is a no-op.
func (s *RequestService) CancelRequest(ctx context.Context, passengerID, requestID string) (*domain.TripRequest, error) {
	actor := domain.Actor{UserID: passengerID, Side: domain.SidePassenger}
	return s.finish(ctx, actor, requestID, domain.RequestStatusCanceled, "", domain.TopicRequestCanceled)
}

// RejectRequest declines a pending request on behalf of the trip's driver.
func (s *RequestService) RejectRequest(ctx context.Context, driverID, requestID, reason string) (*domain.TripRequest, error) {
	actor := domain.Actor{UserID: driverID, Side: domain.SideDriver}
	return s.finish(ctx, actor, requestID, domain.RequestStatusRejected, reason, domain.TopicRequestRejected)
}

// finish moves a pending request to a terminal status other than accepted
// and cancels its negotiation.
func (s *RequestService) finish(
	ctx context.Context,
	actor domain.Actor,
	requestID string,
	status domain.RequestStatus,
	reason string,
	topic string,
) (*domain.TripRequest, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}

	var result *domain.TripRequest
	var changed bool

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		req, err := tx.Requests().LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		trip, err := tx.Trips().GetByID(ctx, req.TripID)
		if err != nil {
			return err
		}
		if !isParticipant(actor, req, trip) {
			return ErrNotParticipant
		}

		if req.Status == status {
			result = req
			return nil
		}
		if !req.IsPending() {
			return ErrRequestNotPending
		}

		now := s.now()
		if err := s.closeRequest(ctx, tx, req, trip, status, reason, topic, now); err != nil {
			return err
		}

		result = req
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("trip request closed",
			zap.String("request_id", result.ID),
			zap.String("status", string(result.Status)),
		)
	}

	return result, nil
}

// closeRequest writes the terminal status, tears down the negotiation and
// records the event. Callers must hold the request lock.
func (s *RequestService) closeRequest(
	ctx context.Context,
	tx repository.Tx,
	req *domain.TripRequest,
	trip *domain.Trip,
	status domain.RequestStatus,
	reason string,
	topic string,
	now time.Time,
) error {
	req.Status = status
	req.RejectionReason = reason
	req.RespondedAt = now
	if err := tx.Requests().Update(ctx, req); err != nil {
		return err
	}

	if err := closeNegotiation(ctx, tx, req.ID, domain.SessionStateCanceled, domain.ReasonNegotiationEnded, now); err != nil {
		return fmt.Errorf("close negotiation: %w", err)
	}

	return s.outbox.Enqueue(ctx, tx, newRequestEvent(req, trip).spec(topic))
}

// AcceptRequestResult contains the outcome of a directly accepted request.
type AcceptRequestResult struct {
	Request *domain.TripRequest
	Booking *domain.Booking
}

// AcceptRequest lets the trip's driver accept the passenger's asking price
// without negotiating. Any active offer is canceled.
func (s *RequestService) AcceptRequest(ctx context.Context, driverID, requestID string) (*AcceptRequestResult, error) {
	actor := domain.Actor{UserID: driverID, Side: domain.SideDriver}
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}

	var result *AcceptRequestResult

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		st, err := lockNegotiation(ctx, tx, actor, requestID, s.maxMovesPerSide, now)
		if err != nil {
			return err
		}

		if !st.req.IsPending() {
			return ErrRequestNotPending
		}
		if !st.trip.IsBookable() {
			return ErrTripNotBookable
		}
		if st.session.IsTerminal() {
			return ErrNegotiationFinished
		}

		booking, err := s.bookings.Book(ctx, tx, st.req, st.req.Price)
		if err != nil {
			return err
		}

		if _, err := tx.Offers().CancelActive(ctx, st.req.ID, "", domain.ReasonAnotherAccepted, now); err != nil {
			return err
		}

		st.req.Status = domain.RequestStatusAccepted
		st.req.RespondedAt = now
		if err := tx.Requests().Update(ctx, st.req); err != nil {
			return err
		}

		st.session.State = domain.SessionStateAccepted
		st.session.LastOfferID = ""
		st.session.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, st.session); err != nil {
			return err
		}

		event := newRequestEvent(st.req, st.trip)
		event.BookingID = booking.ID
		if err := s.outbox.Enqueue(ctx, tx, event.spec(domain.TopicRequestAccepted)); err != nil {
			return err
		}

		result = &AcceptRequestResult{Request: st.req, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trip request accepted",
		zap.String("request_id", result.Request.ID),
		zap.String("booking_id", result.Booking.ID),
	)

	return result, nil
}

// CloseTripNegotiations cancels every pending request of a trip together
// with its negotiation. The trip catalog calls it when a trip is canceled.
// Each request is closed in its own transaction under its own lock.
func (s *RequestService) CloseTripNegotiations(ctx context.Context, tripID, reason string) (int, error) {
	if tripID == "" {
		return 0, ErrInvalidTripID
	}

	ids, err := s.store.Requests().ListPendingByTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		var done bool
		err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
			req, err := tx.Requests().LockByID(ctx, id)
			if err != nil {
				return err
			}
			if !req.IsPending() {
				return nil
			}
			trip, err := tx.Trips().GetByID(ctx, req.TripID)
			if err != nil {
				return err
			}
			if err := s.closeRequest(ctx, tx, req, trip, domain.RequestStatusCanceled, reason, domain.TopicRequestCanceled, s.now()); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			return closed, fmt.Errorf("close request %s: %w", id, err)
		}
		if done {
			closed++
		}
	}

	s.logger.Info("trip negotiations closed",
		zap.String("trip_id", tripID),
		zap.Int("requests", closed),
	)

	return closed, nil
}

// ListMyRequests returns a page of the passenger's requests.
func (s *RequestService) ListMyRequests(ctx context.Context, passengerID string, q ListQuery) (*Page[*domain.TripRequest], error) {
	if passengerID == "" {
		return nil, ErrInvalidActor
	}
	f, err := q.filter(requestStatuses)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.Requests().ListByPassenger(ctx, passengerID, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, q), nil
}

// ListDriverRequests returns a page of requests made on the driver's trips.
func (s *RequestService) ListDriverRequests(ctx context.Context, driverID string, q ListQuery) (*Page[*domain.TripRequest], error) {
	if driverID == "" {
		return nil, ErrInvalidActor
	}
	f, err := q.filter(requestStatuses)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.Requests().ListByDriver(ctx, driverID, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, q), nil
}

// GetMyRequest returns the passenger's most recent request for a trip.
func (s *RequestService) GetMyRequest(ctx context.Context, passengerID, tripID string) (*domain.TripRequest, error) {
	if passengerID == "" {
		return nil, ErrInvalidActor
	}
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	items, _, err := s.store.Requests().ListByPassenger(ctx, passengerID, repository.ListFilter{TripID: tripID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}
	return items[0], nil
}
