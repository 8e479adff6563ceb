package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RequestRepository is an in-memory repository.RequestRepository.
type RequestRepository struct {
	sc scope
}

// Create persists a new request, keeping one live request per passenger
// and trip.
func (r *RequestRepository) Create(_ context.Context, req *domain.TripRequest) error {
	return r.sc.run(func(st *state) error {
		if _, ok := st.requests[req.ID]; ok {
			return repository.ErrDuplicate
		}
		if _, ok := st.trips[req.TripID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.requests {
			if existing.TripID == req.TripID &&
				existing.PassengerID == req.PassengerID &&
				existing.Status != domain.RequestStatusCanceled {
				return repository.ErrDuplicate
			}
		}
		st.requests[req.ID] = *req
		return nil
	})
}

// GetByID retrieves a request by ID.
func (r *RequestRepository) GetByID(_ context.Context, id string) (*domain.TripRequest, error) {
	var out *domain.TripRequest
	err := r.sc.run(func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

// LockByID retrieves a request. Transactions already run one at a time,
// so no extra locking is needed.
func (r *RequestRepository) LockByID(ctx context.Context, id string) (*domain.TripRequest, error) {
	return r.GetByID(ctx, id)
}

// Update writes the mutable fields of a request.
func (r *RequestRepository) Update(_ context.Context, req *domain.TripRequest) error {
	return r.sc.run(func(st *state) error {
		existing, ok := st.requests[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		existing.Price = req.Price
		existing.Status = req.Status
		existing.RejectionReason = req.RejectionReason
		existing.RespondedAt = req.RespondedAt
		st.requests[req.ID] = existing
		return nil
	})
}

// ListPendingByTrip returns the IDs of pending requests for a trip, oldest first.
func (r *RequestRepository) ListPendingByTrip(_ context.Context, tripID string) ([]string, error) {
	var pending []domain.TripRequest
	err := r.sc.run(func(st *state) error {
		for _, req := range st.requests {
			if req.TripID == tripID && req.Status == domain.RequestStatusPending {
				pending = append(pending, req)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	ids := make([]string, 0, len(pending))
	for _, req := range pending {
		ids = append(ids, req.ID)
	}
	return ids, nil
}

// ListByPassenger returns a page of the passenger's requests, newest first.
func (r *RequestRepository) ListByPassenger(_ context.Context, passengerID string, f repository.ListFilter) ([]*domain.TripRequest, int, error) {
	return r.list(f, func(_ *state, req domain.TripRequest) bool {
		return req.PassengerID == passengerID
	})
}

// ListByDriver returns a page of requests made on the driver's trips.
func (r *RequestRepository) ListByDriver(_ context.Context, driverID string, f repository.ListFilter) ([]*domain.TripRequest, int, error) {
	return r.list(f, func(st *state, req domain.TripRequest) bool {
		return st.trips[req.TripID].DriverID == driverID
	})
}

func (r *RequestRepository) list(f repository.ListFilter, owned func(*state, domain.TripRequest) bool) ([]*domain.TripRequest, int, error) {
	var found []domain.TripRequest
	err := r.sc.run(func(st *state) error {
		for _, req := range st.requests {
			if owned(st, req) && matches(f, req.TripID, string(req.Status)) {
				found = append(found, req)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	items, total := page(found, f,
		func(req *domain.TripRequest) time.Time { return req.CreatedAt },
		func(req *domain.TripRequest) string { return req.ID })
	return items, total, nil
}

var _ repository.RequestRepository = (*RequestRepository)(nil)
