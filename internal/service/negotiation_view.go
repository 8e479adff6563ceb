package service

import (
	"context"
	"errors"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// SideMoves is the move budget of one side.
type SideMoves struct {
	Used int `json:"used"`
	Left int `json:"left"`
}

// NegotiationView is the read-only projection of a negotiation as seen by
// one participant. It is derived entirely from the request, session and
// offer ledger.
type NegotiationView struct {
	RequestID       string
	TripID          string
	State           domain.SessionState
	NextTurn        domain.Side // empty until the first offer
	MaxMovesPerSide int
	Driver          SideMoves
	Passenger       SideMoves
	Mine            SideMoves
	ActiveOfferID   string
	AcceptedOfferID string
	LastOfferID     string
	Version         int64
	CanPropose      bool
	CanAccept       bool
	CanReject       bool
	CanCancel       bool
	Offers          []*domain.Offer
}

// GetNegotiation returns the negotiation of a request from actor's side.
func (e *NegotiationEngine) GetNegotiation(ctx context.Context, actor domain.Actor, requestID string) (*NegotiationView, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}

	var view *NegotiationView

	err := e.store.WithinTx(ctx, func(tx repository.Tx) error {
		req, err := tx.Requests().GetByID(ctx, requestID)
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

		session, err := tx.Sessions().GetByRequestID(ctx, req.ID)
		if errors.Is(err, repository.ErrNotFound) {
			// Not persisted until the first mutation.
			session = domain.NewNegotiationSession(req.ID, e.maxMovesPerSide, req.CreatedAt)
		} else if err != nil {
			return err
		}

		offers, err := tx.Offers().ListByRequest(ctx, req.ID)
		if err != nil {
			return err
		}

		view = projectNegotiation(actor, req, trip, session, offers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

func projectNegotiation(
	actor domain.Actor,
	req *domain.TripRequest,
	trip *domain.Trip,
	session *domain.NegotiationSession,
	offers []*domain.Offer,
) *NegotiationView {
	var active, accepted *domain.Offer
	for _, o := range offers {
		switch o.Status {
		case domain.OfferStatusActive:
			active = o
		case domain.OfferStatusAccepted:
			accepted = o
		}
	}

	view := &NegotiationView{
		RequestID:       req.ID,
		TripID:          trip.ID,
		State:           session.State,
		NextTurn:        session.NextTurn,
		MaxMovesPerSide: session.MaxMovesPerSide,
		Driver: SideMoves{
			Used: session.MovesUsed(domain.SideDriver),
			Left: session.MovesLeft(domain.SideDriver),
		},
		Passenger: SideMoves{
			Used: session.MovesUsed(domain.SidePassenger),
			Left: session.MovesLeft(domain.SidePassenger),
		},
		Mine: SideMoves{
			Used: session.MovesUsed(actor.Side),
			Left: session.MovesLeft(actor.Side),
		},
		LastOfferID: session.LastOfferID,
		Version:     session.Version,
		Offers:      offers,
	}
	if active != nil {
		view.ActiveOfferID = active.ID
	}
	if accepted != nil {
		view.AcceptedOfferID = accepted.ID
	}

	open := req.IsPending() && trip.IsBookable() && !session.IsTerminal() && accepted == nil
	if !open {
		return view
	}

	ownActive := active != nil && active.ProposerSide == actor.Side
	view.CanPropose = session.IsTurnOf(actor.Side) && !ownActive && view.Mine.Left > 0
	view.CanAccept = active != nil && !ownActive && active.ID == session.LastOfferID
	view.CanReject = active != nil && !ownActive
	view.CanCancel = ownActive && active.ProposerID == actor.UserID

	return view
}
