package service

import (
	"context"
	"errors"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// negotiationState is the request aggregate loaded under the request lock:
// the request row, its trip and its session move together.
type negotiationState struct {
	req     *domain.TripRequest
	trip    *domain.Trip
	session *domain.NegotiationSession
}

// lockNegotiation takes the request row lock, loads the trip, checks that
// actor takes part in the request and makes sure a session exists.
func lockNegotiation(ctx context.Context, tx repository.Tx, actor domain.Actor, requestID string, maxMoves int, now time.Time) (*negotiationState, error) {
	req, err := tx.Requests().LockByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	trip, err := tx.Trips().GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	if !isParticipant(actor, req, trip) {
		return nil, ErrNotParticipant
	}

	session, err := ensureSession(ctx, tx, req.ID, maxMoves, now)
	if err != nil {
		return nil, err
	}

	return &negotiationState{req: req, trip: trip, session: session}, nil
}

// isParticipant reports whether actor is the request's passenger or the
// driver of its trip, on the matching side.
func isParticipant(actor domain.Actor, req *domain.TripRequest, trip *domain.Trip) bool {
	switch actor.Side {
	case domain.SidePassenger:
		return req.PassengerID == actor.UserID
	case domain.SideDriver:
		return trip.DriverID == actor.UserID
	default:
		return false
	}
}

// ensureSession returns the session of a request, creating it on first use.
// Callers must hold the request lock.
func ensureSession(ctx context.Context, tx repository.Tx, requestID string, maxMoves int, now time.Time) (*domain.NegotiationSession, error) {
	session, err := tx.Sessions().GetByRequestID(ctx, requestID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	session = domain.NewNegotiationSession(requestID, maxMoves, now)
	if err := tx.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// checkVersion fails with ErrStaleVersion when the caller pinned a session
// version that is no longer current.
func checkVersion(session *domain.NegotiationSession, expected *int64) error {
	if expected != nil && *expected != session.Version {
		return ErrStaleVersion
	}
	return nil
}

// closeNegotiation cancels every active offer of the request and moves an
// active session to state. A missing session is left alone.
func closeNegotiation(ctx context.Context, tx repository.Tx, requestID string, state domain.SessionState, reason string, now time.Time) error {
	if _, err := tx.Offers().CancelActive(ctx, requestID, "", reason, now); err != nil {
		return err
	}

	session, err := tx.Sessions().GetByRequestID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return nil
	}

	session.State = state
	session.LastOfferID = ""
	session.UpdatedAt = now
	return tx.Sessions().Update(ctx, session)
}

func validateActor(actor domain.Actor) error {
	if actor.UserID == "" || !actor.Side.Valid() {
		return ErrInvalidActor
	}
	return nil
}
