package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (id, driver_id, status, seats_total, seats_available, departure_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.DriverID,
		trip.Status,
		trip.SeatsTotal,
		trip.SeatsAvailable,
		nullTime(trip.DepartureAt),
		trip.CreatedAt,
	)

	return translateError(err)
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `
		SELECT id, driver_id, status, seats_total, seats_available, departure_at, created_at
		FROM trips WHERE id = $1
	`

	var trip domain.Trip
	var departureAt sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&trip.ID,
		&trip.DriverID,
		&trip.Status,
		&trip.SeatsTotal,
		&trip.SeatsAvailable,
		&departureAt,
		&trip.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	if departureAt.Valid {
		trip.DepartureAt = departureAt.Time
	}

	return &trip, nil
}

// ReserveSeats conditionally decrements the seat ledger. The WHERE clause is
// the only thing standing between concurrent accepts and double-booking, so
// it must never be split into a read followed by a write.
func (r *TripRepository) ReserveSeats(ctx context.Context, tripID string, n int) (bool, error) {
	query := `
		UPDATE trips
		SET seats_available = seats_available - $1
		WHERE id = $2 AND seats_available >= $1 AND status = $3
	`

	result, err := r.q.ExecContext(ctx, query, n, tripID, domain.TripStatusPublished)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// ReleaseSeats returns seats to the ledger, capped at the trip total.
func (r *TripRepository) ReleaseSeats(ctx context.Context, tripID string, n int) error {
	query := `
		UPDATE trips
		SET seats_available = LEAST(seats_total, seats_available + $1)
		WHERE id = $2
	`

	result, err := r.q.ExecContext(ctx, query, n, tripID)
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

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
