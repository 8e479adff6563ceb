package repository

import (
	"context"

	"carpool/internal/domain"
)

// SessionRepository defines the persistence operations for negotiation sessions.
type SessionRepository interface {
	// Create persists a new session. Returns ErrDuplicate if the request
	// already has one.
	Create(ctx context.Context, session *domain.NegotiationSession) error

	// GetByRequestID retrieves the session of a request.
	GetByRequestID(ctx context.Context, requestID string) (*domain.NegotiationSession, error)

	// Update writes session only if the stored version still equals
	// session.Version, then bumps session.Version. Returns ErrStaleVersion
	// when the stored version has moved on.
	Update(ctx context.Context, session *domain.NegotiationSession) error
}
