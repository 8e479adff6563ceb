package memory

import (
	"context"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// SessionRepository is an in-memory repository.SessionRepository.
type SessionRepository struct {
	sc scope
}

// Create persists a new session.
func (r *SessionRepository) Create(_ context.Context, s *domain.NegotiationSession) error {
	return r.sc.run(func(st *state) error {
		if _, ok := st.sessions[s.RequestID]; ok {
			return repository.ErrDuplicate
		}
		if _, ok := st.requests[s.RequestID]; !ok {
			return repository.ErrNotFound
		}
		st.sessions[s.RequestID] = *s
		return nil
	})
}

// GetByRequestID retrieves the session of a request.
func (r *SessionRepository) GetByRequestID(_ context.Context, requestID string) (*domain.NegotiationSession, error) {
	var out *domain.NegotiationSession
	err := r.sc.run(func(st *state) error {
		s, ok := st.sessions[requestID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

// Update writes the session if its version still matches, then bumps it.
func (r *SessionRepository) Update(_ context.Context, s *domain.NegotiationSession) error {
	return r.sc.run(func(st *state) error {
		existing, ok := st.sessions[s.RequestID]
		if !ok || existing.Version != s.Version {
			return repository.ErrStaleVersion
		}
		s.Version++
		st.sessions[s.RequestID] = *s
		return nil
	})
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
