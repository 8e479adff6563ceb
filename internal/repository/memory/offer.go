package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// OfferRepository is an in-memory repository.OfferRepository.
type OfferRepository struct {
	sc scope
}

// Create appends an offer, enforcing a unique sequence and a single active
// offer per request.
func (r *OfferRepository) Create(_ context.Context, o *domain.Offer) error {
	return r.sc.run(func(st *state) error {
		if _, ok := st.offers[o.ID]; ok {
			return repository.ErrDuplicate
		}
		if _, ok := st.requests[o.RequestID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.offers {
			if existing.RequestID != o.RequestID {
				continue
			}
			if existing.Seq == o.Seq {
				return repository.ErrDuplicate
			}
			if existing.Status == o.Status &&
				(o.Status == domain.OfferStatusActive || o.Status == domain.OfferStatusAccepted) {
				return repository.ErrDuplicate
			}
		}
		st.offers[o.ID] = *o
		return nil
	})
}

// GetByID retrieves an offer by ID.
func (r *OfferRepository) GetByID(_ context.Context, id string) (*domain.Offer, error) {
	var out *domain.Offer
	err := r.sc.run(func(st *state) error {
		o, ok := st.offers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &o
		return nil
	})
	return out, err
}

// ListByRequest returns all offers of a request ordered by sequence.
func (r *OfferRepository) ListByRequest(_ context.Context, requestID string) ([]*domain.Offer, error) {
	var offers []*domain.Offer
	err := r.sc.run(func(st *state) error {
		for _, o := range st.offers {
			if o.RequestID == requestID {
				o := o
				offers = append(offers, &o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(offers, func(i, j int) bool { return offers[i].Seq < offers[j].Seq })
	return offers, nil
}

// GetActive returns the active offer of a request, or nil if none.
func (r *OfferRepository) GetActive(_ context.Context, requestID string) (*domain.Offer, error) {
	var out *domain.Offer
	err := r.sc.run(func(st *state) error {
		for _, o := range st.offers {
			if o.RequestID == requestID && o.Status == domain.OfferStatusActive {
				o := o
				out = &o
				return nil
			}
		}
		return nil
	})
	return out, err
}

// HasAccepted reports whether any offer of the request was accepted.
func (r *OfferRepository) HasAccepted(_ context.Context, requestID string) (bool, error) {
	var found bool
	err := r.sc.run(func(st *state) error {
		for _, o := range st.offers {
			if o.RequestID == requestID && o.Status == domain.OfferStatusAccepted {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// NextSeq returns the next sequence number for a request.
func (r *OfferRepository) NextSeq(_ context.Context, requestID string) (int, error) {
	next := 1
	err := r.sc.run(func(st *state) error {
		for _, o := range st.offers {
			if o.RequestID == requestID && o.Seq >= next {
				next = o.Seq + 1
			}
		}
		return nil
	})
	return next, err
}

// Resolve moves an active offer to a final status.
func (r *OfferRepository) Resolve(_ context.Context, id string, status domain.OfferStatus, reason, note string, at time.Time) (bool, error) {
	var resolved bool
	err := r.sc.run(func(st *state) error {
		o, ok := st.offers[id]
		if !ok || o.Status != domain.OfferStatusActive {
			return nil
		}
		if status == domain.OfferStatusAccepted {
			for _, other := range st.offers {
				if other.RequestID == o.RequestID && other.Status == domain.OfferStatusAccepted {
					return repository.ErrDuplicate
				}
			}
		}
		o.Status = status
		o.ResponseReason = reason
		o.ResponseNote = note
		o.RespondedAt = at
		st.offers[id] = o
		resolved = true
		return nil
	})
	return resolved, err
}

// CancelActive cancels every active offer of a request except exceptID.
func (r *OfferRepository) CancelActive(_ context.Context, requestID, exceptID, reason string, at time.Time) (int, error) {
	var n int
	err := r.sc.run(func(st *state) error {
		for id, o := range st.offers {
			if o.RequestID != requestID || o.Status != domain.OfferStatusActive || id == exceptID {
				continue
			}
			o.Status = domain.OfferStatusCanceled
			o.ResponseReason = reason
			o.RespondedAt = at
			st.offers[id] = o
			n++
		}
		return nil
	})
	return n, err
}

var _ repository.OfferRepository = (*OfferRepository)(nil)
