package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// SessionRepository is a PostgreSQL implementation of repository.SessionRepository.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{q: db}
}

// NewSessionRepositoryWithTx creates a session repository using a transaction.
func NewSessionRepositoryWithTx(tx *sql.Tx) *SessionRepository {
	return &SessionRepository{q: tx}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, s *domain.NegotiationSession) error {
	query := `
		INSERT INTO negotiation_sessions (request_id, state, next_turn, driver_moves_left, passenger_moves_left, max_moves_per_side, last_offer_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		s.RequestID,
		s.State,
		s.NextTurn,
		s.DriverMovesLeft,
		s.PassengerMovesLeft,
		s.MaxMovesPerSide,
		nullString(s.LastOfferID),
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	)

	return translateError(err)
}

// GetByRequestID retrieves the session of a request.
func (r *SessionRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.NegotiationSession, error) {
	query := `
		SELECT request_id, state, next_turn, driver_moves_left, passenger_moves_left, max_moves_per_side, last_offer_id, version, created_at, updated_at
		FROM negotiation_sessions WHERE request_id = $1
	`

	var s domain.NegotiationSession
	var lastOfferID sql.NullString

	err := r.q.QueryRowContext(ctx, query, requestID).Scan(
		&s.RequestID,
		&s.State,
		&s.NextTurn,
		&s.DriverMovesLeft,
		&s.PassengerMovesLeft,
		&s.MaxMovesPerSide,
		&lastOfferID,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	s.LastOfferID = lastOfferID.String

	return &s, nil
}

// Update writes the session guarded by its version.
func (r *SessionRepository) Update(ctx context.Context, s *domain.NegotiationSession) error {
	query := `
		UPDATE negotiation_sessions
		SET state = $1, next_turn = $2, driver_moves_left = $3, passenger_moves_left = $4,
		    last_offer_id = $5, version = version + 1, updated_at = $6
		WHERE request_id = $7 AND version = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		s.State,
		s.NextTurn,
		s.DriverMovesLeft,
		s.PassengerMovesLeft,
		nullString(s.LastOfferID),
		s.UpdatedAt,
		s.RequestID,
		s.Version,
	)
	if err != nil {
		return translateError(err)
	}

	changed, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if !changed {
		return repository.ErrStaleVersion
	}

	s.Version++
	return nil
}

// Ensure SessionRepository implements repository.SessionRepository.
var _ repository.SessionRepository = (*SessionRepository)(nil)
