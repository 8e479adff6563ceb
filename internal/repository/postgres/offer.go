package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// OfferRepository is a PostgreSQL implementation of repository.OfferRepository.
type OfferRepository struct {
	q Querier
}

// NewOfferRepository creates a new PostgreSQL offer repository.
func NewOfferRepository(db *sql.DB) *OfferRepository {
	return &OfferRepository{q: db}
}

// NewOfferRepositoryWithTx creates an offer repository using a transaction.
func NewOfferRepositoryWithTx(tx *sql.Tx) *OfferRepository {
	return &OfferRepository{q: tx}
}

const offerColumns = `id, request_id, seq, proposer_id, proposer_side, price, currency, message, status, response_reason, response_note, responded_at, created_at`

// Create appends an offer to the ledger.
func (r *OfferRepository) Create(ctx context.Context, o *domain.Offer) error {
	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		o.ID,
		o.RequestID,
		o.Seq,
		o.ProposerID,
		o.ProposerSide,
		o.Price,
		o.Currency,
		nullString(o.Message),
		o.Status,
		nullString(o.ResponseReason),
		nullString(o.ResponseNote),
		nullTime(o.RespondedAt),
		o.CreatedAt,
	)

	return translateError(err)
}

// GetByID retrieves an offer by ID.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	return scanOffer(r.q.QueryRowContext(ctx, query, id))
}

// ListByRequest returns the offers of a request ordered by sequence.
func (r *OfferRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE request_id = $1 ORDER BY seq`

	rows, err := r.q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var offers []*domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}

	return offers, rows.Err()
}

// GetActive returns the active offer of a request, or nil if none.
func (r *OfferRepository) GetActive(ctx context.Context, requestID string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE request_id = $1 AND status = $2 ORDER BY seq DESC LIMIT 1`

	o, err := scanOffer(r.q.QueryRowContext(ctx, query, requestID, domain.OfferStatusActive))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return o, err
}

// HasAccepted reports whether any offer of the request was accepted.
func (r *OfferRepository) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM offers WHERE request_id = $1 AND status = $2)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, requestID, domain.OfferStatusAccepted).Scan(&exists); err != nil {
		return false, translateError(err)
	}
	return exists, nil
}

// NextSeq returns the next sequence number for a request.
func (r *OfferRepository) NextSeq(ctx context.Context, requestID string) (int, error) {
	query := `SELECT COALESCE(MAX(seq), 0) + 1 FROM offers WHERE request_id = $1`

	var seq int
	if err := r.q.QueryRowContext(ctx, query, requestID).Scan(&seq); err != nil {
		return 0, translateError(err)
	}
	return seq, nil
}

// Resolve moves an active offer to a final status.
func (r *OfferRepository) Resolve(ctx context.Context, id string, status domain.OfferStatus, reason, note string, at time.Time) (bool, error) {
	query := `
		UPDATE offers
		SET status = $1, response_reason = $2, response_note = $3, responded_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		status,
		nullString(reason),
		nullString(note),
		at,
		id,
		domain.OfferStatusActive,
	)
	if err != nil {
		return false, translateError(err)
	}

	return rowsChanged(result)
}

// CancelActive cancels the active offers of a request except exceptID.
func (r *OfferRepository) CancelActive(ctx context.Context, requestID, exceptID, reason string, at time.Time) (int, error) {
	query := `
		UPDATE offers
		SET status = $1, response_reason = $2, responded_at = $3
		WHERE request_id = $4 AND status = $5 AND ($6 = '' OR id::text <> $6)
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.OfferStatusCanceled,
		nullString(reason),
		at,
		requestID,
		domain.OfferStatusActive,
		exceptID,
	)
	if err != nil {
		return 0, translateError(err)
	}

	n, err := result.RowsAffected()
	return int(n), err
}

func scanOffer(s scanner) (*domain.Offer, error) {
	var o domain.Offer
	var message, reason, note sql.NullString
	var respondedAt sql.NullTime

	err := s.Scan(
		&o.ID,
		&o.RequestID,
		&o.Seq,
		&o.ProposerID,
		&o.ProposerSide,
		&o.Price,
		&o.Currency,
		&message,
		&o.Status,
		&reason,
		&note,
		&respondedAt,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}

	o.Message = message.String
	o.ResponseReason = reason.String
	o.ResponseNote = note.String
	if respondedAt.Valid {
		o.RespondedAt = respondedAt.Time
	}

	return &o, nil
}

// Ensure OfferRepository implements repository.OfferRepository.
var _ repository.OfferRepository = (*OfferRepository)(nil)
