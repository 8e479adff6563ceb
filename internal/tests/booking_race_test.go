package tests

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// 5. CONCURRENT DEMAND
// ──────────────────────────────────────────────

func TestRace_LastSeatGoesToExactlyOnePassenger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 1)

	const passengers = 8
	requests := make([]*domain.TripRequest, passengers)
	offers := make([]*domain.Offer, passengers)
	for i := range passengers {
		requests[i] = h.request(trip.ID, userID("passenger", i), 1, 90000)
		offers[i] = h.offer(driver("driver-1"), requests[i].ID, 100000)
	}

	var wg sync.WaitGroup
	errs := make([]error, passengers)
	for i := range passengers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.AcceptOffer(h.ctx, passenger(userID("passenger", i)), service.AcceptOfferRequest{
				OfferID: offers[i].ID,
			})
		}(i)
	}
	wg.Wait()

	winners, bookings := 0, 0
	for i, err := range errs {
		reqID := requests[i].ID
		if _, berr := h.store.Bookings().GetByRequestID(h.ctx, reqID); berr == nil {
			bookings++
		}

		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, service.ErrInsufficientCapacity)

		// A lost race leaves the negotiation open.
		req, rerr := h.store.Requests().GetByID(h.ctx, reqID)
		require.NoError(t, rerr)
		assert.Equal(t, domain.RequestStatusPending, req.Status)
		assert.Equal(t, domain.SessionStateActive, h.session(reqID).State)
		offer, oerr := h.store.Offers().GetByID(h.ctx, offers[i].ID)
		require.NoError(t, oerr)
		assert.Equal(t, domain.OfferStatusActive, offer.Status)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, bookings)
	assert.Equal(t, 0, h.trip(trip.ID).SeatsAvailable)
	assert.Len(t, h.events(domain.TopicOfferAccepted), 1)
}

func TestRace_DirectAcceptsNeverOversell(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)

	const passengers = 10
	ids := make([]string, passengers)
	for i := range passengers {
		ids[i] = h.request(trip.ID, userID("passenger", i), 1, 90000).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var booked, refused int
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.requests.AcceptRequest(h.ctx, "driver-1", id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				booked++
				return
			}
			assert.ErrorIs(t, err, service.ErrInsufficientCapacity)
			refused++
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, booked)
	assert.Equal(t, passengers-3, refused)
	assert.Equal(t, 0, h.trip(trip.ID).SeatsAvailable)
}

func TestRace_ConcurrentSubmitsKeepOneActiveOffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{
				RequestID: req.ID,
				Price:     int64(100000 + i),
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, service.ErrOwnOfferPending)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countActive(h.offers(req.ID)))
	assert.Equal(t, 2, h.session(req.ID).MovesLeft(domain.SideDriver))
}

func TestRace_BothSidesOpenAtOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	actors := []domain.Actor{driver("driver-1"), passenger("passenger-1")}
	var wg sync.WaitGroup
	errs := make([]error, len(actors))
	for i, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.SubmitOffer(h.ctx, actor, service.SubmitOfferRequest{
				RequestID: req.ID,
				Price:     int64(95000 + i),
			})
		}()
	}
	wg.Wait()

	// Whoever loses the lock answers the opening offer.
	for _, err := range errs {
		assert.NoError(t, err)
	}
	offers := h.offers(req.ID)
	require.Len(t, offers, 2)
	assert.Equal(t, 1, countActive(offers))
	assert.NotEqual(t, offers[0].ProposerSide, offers[1].ProposerSide)
	assert.ElementsMatch(t, []int{1, 2}, []int{offers[0].Seq, offers[1].Seq})
}

func TestRace_AcceptAndCancelOnSameOffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 2)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	var wg sync.WaitGroup
	var acceptErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: offer.ID})
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = h.engine.CancelOffer(h.ctx, driver("driver-1"), service.CancelOfferRequest{OfferID: offer.ID})
	}()
	wg.Wait()

	stored, err := h.store.Offers().GetByID(h.ctx, offer.ID)
	require.NoError(t, err)

	// Exactly one of the two wins; the loser sees the winner's outcome.
	if acceptErr == nil {
		assert.Equal(t, domain.OfferStatusAccepted, stored.Status)
		assert.Error(t, cancelErr)
		assert.Equal(t, 1, h.trip(trip.ID).SeatsAvailable)
	} else {
		require.NoError(t, cancelErr)
		assert.Equal(t, domain.OfferStatusCanceled, stored.Status)
		assert.ErrorIs(t, acceptErr, service.ErrOfferNotActive)
		assert.Equal(t, 2, h.trip(trip.ID).SeatsAvailable)
	}
}
