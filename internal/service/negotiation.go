package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// NegotiationEngine runs the turn-based price negotiation of a trip request.
// Every mutation locks the request row first, so calls on the same request
// are serialized while different requests proceed in parallel.
type NegotiationEngine struct {
	store           repository.Store
	bookings        *BookingTransactor
	outbox          *OutboxWriter
	maxMovesPerSide int
	logger          *zap.Logger
	now             func() time.Time
}

// NewNegotiationEngine creates a new NegotiationEngine.
func NewNegotiationEngine(
	store repository.Store,
	bookings *BookingTransactor,
	outbox *OutboxWriter,
	maxMovesPerSide int,
	logger *zap.Logger,
) *NegotiationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NegotiationEngine{
		store:           store,
		bookings:        bookings,
		outbox:          outbox,
		maxMovesPerSide: maxMovesPerSide,
		logger:          logger,
		now:             time.Now,
	}
}

// SubmitOfferRequest contains the parameters for submitting an offer.
type SubmitOfferRequest struct {
	RequestID       string
	Price           int64
	Message         string
	ExpectedVersion *int64 // Optional: fail with ErrStaleVersion if the session moved on
}

// SubmitOffer proposes a price. An active offer from the other side is
// superseded by the new one.
func (e *NegotiationEngine) SubmitOffer(ctx context.Context, actor domain.Actor, req SubmitOfferRequest) (*domain.Offer, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		return nil, ErrInvalidRequestID
	}
	if req.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	var created *domain.Offer
	var outcome error

	err := e.store.WithinTx(ctx, func(tx repository.Tx) error {
		now := e.now()
		st, err := lockNegotiation(ctx, tx, actor, req.RequestID, e.maxMovesPerSide, now)
		if err != nil {
			return err
		}

		if !st.req.IsPending() || !st.trip.IsBookable() {
			return ErrSessionNotActive
		}
		if st.session.IsTerminal() {
			return ErrNegotiationFinished
		}
		if err := checkVersion(st.session, req.ExpectedVersion); err != nil {
			return err
		}

		accepted, err := tx.Offers().HasAccepted(ctx, st.req.ID)
		if err != nil {
			return err
		}
		if accepted {
			return ErrNegotiationFinished
		}

		active, err := tx.Offers().GetActive(ctx, st.req.ID)
		if err != nil {
			return err
		}
		if active != nil && active.ProposerSide == actor.Side {
			return ErrOwnOfferPending
		}
		if !st.session.IsTurnOf(actor.Side) {
			return ErrWrongTurn
		}

		if st.session.MovesLeft(actor.Side) <= 0 {
			// The failed attempt itself ends the negotiation and must commit.
			if err := e.expire(ctx, tx, st, actor.Side, now); err != nil {
				return err
			}
			outcome = ErrBudgetExhausted
			return nil
		}

		if active != nil {
			ok, err := tx.Offers().Resolve(ctx, active.ID, domain.OfferStatusRejected, domain.ReasonCounterOffer, "", now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStaleVersion
			}
		}

		seq, err := tx.Offers().NextSeq(ctx, st.req.ID)
		if err != nil {
			return err
		}

		offer := &domain.Offer{
			ID:           uuid.New().String(),
			RequestID:    st.req.ID,
			Seq:          seq,
			ProposerID:   actor.UserID,
			ProposerSide: actor.Side,
			Price:        req.Price,
			Currency:     st.req.Currency,
			Message:      req.Message,
			Status:       domain.OfferStatusActive,
			CreatedAt:    now,
		}
		if err := tx.Offers().Create(ctx, offer); err != nil {
			return err
		}

		st.session.ConsumeMove(actor.Side)
		st.session.NextTurn = actor.Side.Opposite()
		st.session.LastOfferID = offer.ID
		st.session.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, st.session); err != nil {
			return err
		}

		event := newOfferEvent(st, offer, actor)
		event.AttemptNo = st.session.MovesUsed(actor.Side)
		if err := e.outbox.Enqueue(ctx, tx, event.spec(domain.TopicOfferCreated)); err != nil {
			return err
		}

		created = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		e.logger.Info("negotiation expired on exhausted budget",
			zap.String("request_id", req.RequestID),
			zap.String("side", string(actor.Side)),
		)
		return nil, outcome
	}

	e.logger.Info("offer submitted",
		zap.String("offer_id", created.ID),
		zap.String("request_id", created.RequestID),
		zap.Int("seq", created.Seq),
		zap.String("side", string(created.ProposerSide)),
	)

	return created, nil
}

// AcceptOfferRequest contains the parameters for accepting an offer.
type AcceptOfferRequest struct {
	OfferID         string
	Note            string
	ExpectedVersion *int64
}

// AcceptOfferResult contains the outcome of an accepted offer.
type AcceptOfferResult struct {
	Offer   *domain.Offer
	Request *domain.TripRequest
	Booking *domain.Booking
}

// AcceptOffer accepts the current offer and books the seats at its price.
// Nothing is written unless the seats could be reserved.
func (e *NegotiationEngine) AcceptOffer(ctx context.Context, actor domain.Actor, req AcceptOfferRequest) (*AcceptOfferResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if req.OfferID == "" {
		return nil, ErrInvalidOfferID
	}

	var result *AcceptOfferResult

	err := e.store.WithinTx(ctx, func(tx repository.Tx) error {
		now := e.now()
		st, offer, err := e.lockOffer(ctx, tx, actor, req.OfferID, now)
		if err != nil {
			return err
		}

		if !st.req.IsPending() || !st.trip.IsBookable() {
			return ErrSessionNotActive
		}
		if st.session.IsTerminal() {
			return ErrNegotiationFinished
		}
		if err := checkVersion(st.session, req.ExpectedVersion); err != nil {
			return err
		}
		if offer.ProposerSide == actor.Side {
			return ErrNotCounterparty
		}
		if !offer.IsActive() {
			return ErrOfferNotActive
		}
		if st.session.LastOfferID != offer.ID {
			return ErrOfferNotCurrent
		}

		booking, err := e.bookings.Book(ctx, tx, st.req, offer.Price)
		if err != nil {
			return err
		}

		ok, err := tx.Offers().Resolve(ctx, offer.ID, domain.OfferStatusAccepted, "", req.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}
		offer.Status = domain.OfferStatusAccepted
		offer.ResponseNote = req.Note
		offer.RespondedAt = now

		if _, err := tx.Offers().CancelActive(ctx, st.req.ID, offer.ID, domain.ReasonAnotherAccepted, now); err != nil {
			return err
		}

		st.req.Status = domain.RequestStatusAccepted
		st.req.Price = offer.Price
		st.req.RespondedAt = now
		if err := tx.Requests().Update(ctx, st.req); err != nil {
			return err
		}

		st.session.State = domain.SessionStateAccepted
		st.session.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, st.session); err != nil {
			return err
		}

		event := newOfferEvent(st, offer, actor)
		event.BookingID = booking.ID
		if err := e.outbox.Enqueue(ctx, tx, event.spec(domain.TopicOfferAccepted)); err != nil {
			return err
		}

		result = &AcceptOfferResult{Offer: offer, Request: st.req, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("offer accepted",
		zap.String("offer_id", result.Offer.ID),
		zap.String("request_id", result.Request.ID),
		zap.String("booking_id", result.Booking.ID),
		zap.Int64("price", result.Offer.Price),
	)

	return result, nil
}

// RejectOfferRequest contains the parameters for rejecting an offer.
type RejectOfferRequest struct {
	OfferID         string
	Reason          string
	Note            string
	ExpectedVersion *int64
}

// RejectOffer declines the active offer. The turn passes to the rejecting
// side; if that side has no moves left the negotiation expires.
func (e *NegotiationEngine) RejectOffer(ctx context.Context, actor domain.Actor, req RejectOfferRequest) (*domain.Offer, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if req.OfferID == "" {
		return nil, ErrInvalidOfferID
	}

	var rejected *domain.Offer
	var expired bool

	err := e.store.WithinTx(ctx, func(tx repository.Tx) error {
		now := e.now()
		st, offer, err := e.lockOffer(ctx, tx, actor, req.OfferID, now)
		if err != nil {
			return err
		}

		if !st.req.IsPending() {
			return ErrSessionNotActive
		}
		if st.session.IsTerminal() {
			return ErrNegotiationFinished
		}
		if err := checkVersion(st.session, req.ExpectedVersion); err != nil {
			return err
		}
		if offer.ProposerSide == actor.Side {
			return ErrNotCounterparty
		}
		if !offer.IsActive() {
			return ErrOfferNotActive
		}

		ok, err := tx.Offers().Resolve(ctx, offer.ID, domain.OfferStatusRejected, req.Reason, req.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}
		offer.Status = domain.OfferStatusRejected
		offer.ResponseReason = req.Reason
		offer.ResponseNote = req.Note
		offer.RespondedAt = now

		st.session.NextTurn = actor.Side
		if st.session.MovesLeft(actor.Side) <= 0 {
			st.session.State = domain.SessionStateExpired
			expired = true
		}
		st.session.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, st.session); err != nil {
			return err
		}

		event := newOfferEvent(st, offer, actor)
		event.Reason = req.Reason
		if err := e.outbox.Enqueue(ctx, tx, event.spec(domain.TopicOfferRejected)); err != nil {
			return err
		}
		if expired {
			if err := e.enqueueExpired(ctx, tx, st, actor.Side); err != nil {
				return err
			}
		}

		rejected = offer
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("offer rejected",
		zap.String("offer_id", rejected.ID),
		zap.String("request_id", rejected.RequestID),
		zap.Bool("negotiation_expired", expired),
	)

	return rejected, nil
}

// CancelOfferRequest contains the parameters for withdrawing an offer.
type CancelOfferRequest struct {
	OfferID         string
	ExpectedVersion *int64
}

// CancelOffer withdraws the caller's own active offer. The turn returns to
// the canceling side and the consumed move is not refunded. Canceling an
// already canceled offer is a no-op.
func (e *NegotiationEngine) CancelOffer(ctx context.Context, actor domain.Actor, req CancelOfferRequest) (*domain.Offer, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if req.OfferID == "" {
		return nil, ErrInvalidOfferID
	}

	var canceled *domain.Offer
	var changed, expired bool

	err := e.store.WithinTx(ctx, func(tx repository.Tx) error {
		now := e.now()
		st, offer, err := e.lockOffer(ctx, tx, actor, req.OfferID, now)
		if err != nil {
			return err
		}

		if offer.ProposerID != actor.UserID || offer.ProposerSide != actor.Side {
			return ErrNotProposer
		}
		if offer.Status == domain.OfferStatusCanceled {
			canceled = offer
			return nil
		}
		if !offer.IsActive() {
			return ErrOfferNotActive
		}
		if st.session.IsTerminal() {
			return ErrNegotiationFinished
		}
		if err := checkVersion(st.session, req.ExpectedVersion); err != nil {
			return err
		}

		ok, err := tx.Offers().Resolve(ctx, offer.ID, domain.OfferStatusCanceled, "", "", now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}
		offer.Status = domain.OfferStatusCanceled
		offer.RespondedAt = now

		st.session.NextTurn = actor.Side
		st.session.LastOfferID = ""
		if st.session.MovesLeft(actor.Side) <= 0 {
			st.session.State = domain.SessionStateExpired
			expired = true
		}
		st.session.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, st.session); err != nil {
			return err
		}

		if err := e.outbox.Enqueue(ctx, tx, newOfferEvent(st, offer, actor).spec(domain.TopicOfferCanceled)); err != nil {
			return err
		}
		if expired {
			if err := e.enqueueExpired(ctx, tx, st, actor.Side); err != nil {
				return err
			}
		}

		canceled = offer
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.logger.Info("offer canceled",
			zap.String("offer_id", canceled.ID),
			zap.String("request_id", canceled.RequestID),
			zap.Bool("negotiation_expired", expired),
		)
	}

	return canceled, nil
}

// lockOffer resolves the request of an offer, locks it, and re-reads the
// offer under the lock.
func (e *NegotiationEngine) lockOffer(ctx context.Context, tx repository.Tx, actor domain.Actor, offerID string, now time.Time) (*negotiationState, *domain.Offer, error) {
	offer, err := tx.Offers().GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}

	st, err := lockNegotiation(ctx, tx, actor, offer.RequestID, e.maxMovesPerSide, now)
	if err != nil {
		return nil, nil, err
	}

	offer, err = tx.Offers().GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}

	return st, offer, nil
}

// expire ends the negotiation because side ran out of moves.
func (e *NegotiationEngine) expire(ctx context.Context, tx repository.Tx, st *negotiationState, side domain.Side, now time.Time) error {
	if _, err := tx.Offers().CancelActive(ctx, st.req.ID, "", domain.ReasonNegotiationEnded, now); err != nil {
		return err
	}

	st.session.State = domain.SessionStateExpired
	st.session.UpdatedAt = now
	if err := tx.Sessions().Update(ctx, st.session); err != nil {
		return err
	}

	return e.enqueueExpired(ctx, tx, st, side)
}

func (e *NegotiationEngine) enqueueExpired(ctx context.Context, tx repository.Tx, st *negotiationState, side domain.Side) error {
	event := NegotiationExpiredEvent{
		RequestID:     st.req.ID,
		TripID:        st.trip.ID,
		PassengerID:   st.req.PassengerID,
		DriverID:      st.trip.DriverID,
		ExhaustedSide: side,
	}
	return e.outbox.Enqueue(ctx, tx, event.spec())
}
