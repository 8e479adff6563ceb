package repository

import (
	"context"
	"time"

	"carpool/internal/domain"
)

// OfferRepository defines the persistence operations for the offer ledger.
type OfferRepository interface {
	// Create appends an offer to the ledger.
	Create(ctx context.Context, offer *domain.Offer) error

	// GetByID retrieves an offer by ID.
	GetByID(ctx context.Context, id string) (*domain.Offer, error)

	// ListByRequest returns all offers of a request ordered by sequence.
	ListByRequest(ctx context.Context, requestID string) ([]*domain.Offer, error)

	// GetActive returns the active offer of a request, or nil if none.
	GetActive(ctx context.Context, requestID string) (*domain.Offer, error)

	// HasAccepted reports whether any offer of the request was accepted.
	HasAccepted(ctx context.Context, requestID string) (bool, error)

	// NextSeq returns the next sequence number for a request. Callers must
	// hold the request lock.
	NextSeq(ctx context.Context, requestID string) (int, error)

	// Resolve moves an active offer to a final status. It reports false if
	// the offer was no longer active.
	Resolve(ctx context.Context, id string, status domain.OfferStatus, reason, note string, at time.Time) (bool, error)

	// CancelActive cancels every active offer of a request except exceptID
	// and returns how many were canceled.
	CancelActive(ctx context.Context, requestID, exceptID, reason string, at time.Time) (int, error)
}
