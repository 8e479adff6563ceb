package domain

import "time"

// SessionState represents the lifecycle of a negotiation session.
type SessionState string

const (
	SessionStateActive   SessionState = "ACTIVE"
	SessionStateAccepted SessionState = "ACCEPTED"
	SessionStateCanceled SessionState = "CANCELED"
	SessionStateExpired  SessionState = "EXPIRED"
)

// NegotiationSession tracks turn order and the remaining move budget of both
// sides. Version is bumped on every write and used as a compare-and-swap guard.
// An empty NextTurn means no offer was made yet and either side may open.
type NegotiationSession struct {
	RequestID          string
	State              SessionState
	NextTurn           Side
	DriverMovesLeft    int
	PassengerMovesLeft int
	MaxMovesPerSide    int
	LastOfferID        string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewNegotiationSession returns a fresh session that either side may open.
func NewNegotiationSession(requestID string, maxMovesPerSide int, now time.Time) *NegotiationSession {
	return &NegotiationSession{
		RequestID:          requestID,
		State:              SessionStateActive,
		DriverMovesLeft:    maxMovesPerSide,
		PassengerMovesLeft: maxMovesPerSide,
		MaxMovesPerSide:    maxMovesPerSide,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// IsTerminal reports whether the session accepts no further mutations.
func (s *NegotiationSession) IsTerminal() bool {
	return s.State != SessionStateActive
}

// IsTurnOf reports whether side may propose next.
func (s *NegotiationSession) IsTurnOf(side Side) bool {
	return s.NextTurn == "" || s.NextTurn == side
}

// MovesLeft returns the remaining budget of the given side.
func (s *NegotiationSession) MovesLeft(side Side) int {
	if side == SideDriver {
		return s.DriverMovesLeft
	}
	return s.PassengerMovesLeft
}

// MovesUsed returns how many offers the given side has submitted.
func (s *NegotiationSession) MovesUsed(side Side) int {
	used := s.MaxMovesPerSide - s.MovesLeft(side)
	if used < 0 {
		return 0
	}
	return used
}

// ConsumeMove charges one move to side.
func (s *NegotiationSession) ConsumeMove(side Side) {
	if side == SideDriver {
		s.DriverMovesLeft--
		return
	}
	s.PassengerMovesLeft--
}
