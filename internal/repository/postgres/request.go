package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RequestRepository is a PostgreSQL implementation of repository.RequestRepository.
type RequestRepository struct {
	q Querier
}

// NewRequestRepository creates a new PostgreSQL request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{q: db}
}

// NewRequestRepositoryWithTx creates a request repository using a transaction.
func NewRequestRepositoryWithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{q: tx}
}

const requestColumns = `id, trip_id, passenger_id, seats, price, currency, message, status, rejection_reason, created_at, responded_at`

// Create persists a new request.
func (r *RequestRepository) Create(ctx context.Context, req *domain.TripRequest) error {
	query := `
		INSERT INTO trip_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.TripID,
		req.PassengerID,
		req.Seats,
		req.Price,
		req.Currency,
		nullString(req.Message),
		req.Status,
		nullString(req.RejectionReason),
		req.CreatedAt,
		nullTime(req.RespondedAt),
	)

	return translateError(err)
}

// GetByID retrieves a request by ID.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.TripRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = $1`
	return scanRequest(r.q.QueryRowContext(ctx, query, id))
}

// LockByID retrieves a request with FOR UPDATE, serializing every
// negotiation mutation on the same request.
func (r *RequestRepository) LockByID(ctx context.Context, id string) (*domain.TripRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = $1 FOR UPDATE`
	return scanRequest(r.q.QueryRowContext(ctx, query, id))
}

// Update writes the mutable fields of a request.
func (r *RequestRepository) Update(ctx context.Context, req *domain.TripRequest) error {
	query := `
		UPDATE trip_requests
		SET price = $1, status = $2, rejection_reason = $3, responded_at = $4
		WHERE id = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		req.Price,
		req.Status,
		nullString(req.RejectionReason),
		nullTime(req.RespondedAt),
		req.ID,
	)
	if err != nil {
		return translateError(err)
	}

	changed, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if !changed {
		return repository.ErrNotFound
	}

	return nil
}

// ListPendingByTrip returns the IDs of pending requests for a trip.
func (r *RequestRepository) ListPendingByTrip(ctx context.Context, tripID string) ([]string, error) {
	query := `
		SELECT id FROM trip_requests
		WHERE trip_id = $1 AND status = $2
		ORDER BY created_at
	`

	rows, err := r.q.QueryContext(ctx, query, tripID, domain.RequestStatusPending)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListByPassenger returns a page of the passenger's requests, newest first.
func (r *RequestRepository) ListByPassenger(ctx context.Context, passengerID string, f repository.ListFilter) ([]*domain.TripRequest, int, error) {
	return listRows(ctx, r.q, "trip_requests", requestColumns, ownedByPassenger, passengerID, f, scanRequest)
}

// ListByDriver returns a page of requests made on the driver's trips.
func (r *RequestRepository) ListByDriver(ctx context.Context, driverID string, f repository.ListFilter) ([]*domain.TripRequest, int, error) {
	return listRows(ctx, r.q, "trip_requests", requestColumns, ownedByDriver, driverID, f, scanRequest)
}

func scanRequest(s scanner) (*domain.TripRequest, error) {
	var req domain.TripRequest
	var message, rejectionReason sql.NullString
	var respondedAt sql.NullTime

	err := s.Scan(
		&req.ID,
		&req.TripID,
		&req.PassengerID,
		&req.Seats,
		&req.Price,
		&req.Currency,
		&message,
		&req.Status,
		&rejectionReason,
		&req.CreatedAt,
		&respondedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	req.Message = message.String
	req.RejectionReason = rejectionReason.String
	if respondedAt.Valid {
		req.RespondedAt = respondedAt.Time
	}

	return &req, nil
}

// Ensure RequestRepository implements repository.RequestRepository.
var _ repository.RequestRepository = (*RequestRepository)(nil)
