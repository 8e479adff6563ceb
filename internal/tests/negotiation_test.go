package tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// 1. NEGOTIATION PROTOCOL
// ──────────────────────────────────────────────

func TestNegotiation_CounterOffersUntilAccepted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	first := h.offer(driver("driver-1"), req.ID, 100000)
	second := h.offer(passenger("passenger-1"), req.ID, 95000)
	third := h.offer(driver("driver-1"), req.ID, 98000)

	assert.Equal(t, []int{1, 2, 3}, []int{first.Seq, second.Seq, third.Seq})
	assert.Equal(t, "USD", third.Currency)

	result, err := h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: third.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.OfferStatusAccepted, result.Offer.Status)
	assert.Equal(t, domain.RequestStatusAccepted, result.Request.Status)
	assert.Equal(t, int64(98000), result.Request.Price)
	assert.Equal(t, int64(98000), result.Booking.Price)
	assert.Equal(t, 1, result.Booking.Seats)
	assert.Equal(t, domain.BookingStatusConfirmed, result.Booking.Status)
	assert.Equal(t, 2, h.trip(trip.ID).SeatsAvailable)

	session := h.session(req.ID)
	assert.Equal(t, domain.SessionStateAccepted, session.State)
	assert.Equal(t, 2, session.MovesUsed(domain.SideDriver))
	assert.Equal(t, 1, session.MovesUsed(domain.SidePassenger))

	statuses := map[int]domain.OfferStatus{}
	for _, o := range h.offers(req.ID) {
		statuses[o.Seq] = o.Status
	}
	assert.Equal(t, map[int]domain.OfferStatus{
		1: domain.OfferStatusRejected,
		2: domain.OfferStatusRejected,
		3: domain.OfferStatusAccepted,
	}, statuses)

	assert.Equal(t, []string{
		domain.TopicRequestCreated,
		domain.TopicOfferCreated,
		domain.TopicOfferCreated,
		domain.TopicOfferCreated,
		domain.TopicOfferAccepted,
	}, h.topics())

	accepted := h.events(domain.TopicOfferAccepted)
	require.Len(t, accepted, 1)
	payload := decode[service.OfferEvent](t, accepted[0].Payload)
	assert.Equal(t, result.Booking.ID, payload.BookingID)
	assert.Equal(t, third.ID, accepted[0].AggregateID)
	assert.Equal(t, domain.TopicOfferAccepted+":"+third.ID, accepted[0].IdempotencyKey)

	_, err = h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 97000})
	assert.ErrorIs(t, err, service.ErrSessionNotActive)
}

func TestNegotiation_EitherSideMayOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)

	// Passenger opens with a counter-price.
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	opening := h.offer(passenger("passenger-1"), req.ID, 91000)
	assert.Equal(t, 1, opening.Seq)
	assert.Equal(t, domain.SidePassenger, opening.ProposerSide)
	assert.Equal(t, domain.SideDriver, h.session(req.ID).NextTurn)

	_, err := h.engine.SubmitOffer(h.ctx, passenger("passenger-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 92000})
	assert.ErrorIs(t, err, service.ErrOwnOfferPending)

	counter := h.offer(driver("driver-1"), req.ID, 95000)
	assert.Equal(t, 2, counter.Seq)

	// Driver opens on another request.
	other := h.request(trip.ID, "passenger-2", 1, 90000)
	h.offer(driver("driver-1"), other.ID, 100000)
	assert.Equal(t, domain.SidePassenger, h.session(other.ID).NextTurn)
}

func TestNegotiation_OwnOfferPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	h.offer(driver("driver-1"), req.ID, 100000)

	_, err := h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 99000})
	assert.ErrorIs(t, err, service.ErrOwnOfferPending)
	assert.Equal(t, 2, h.session(req.ID).MovesLeft(domain.SideDriver))
}

func TestNegotiation_ValidatesInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	tests := []struct {
		name  string
		actor domain.Actor
		in    service.SubmitOfferRequest
		want  error
	}{
		{"zero price", driver("driver-1"), service.SubmitOfferRequest{RequestID: req.ID}, service.ErrInvalidPrice},
		{"missing request", driver("driver-1"), service.SubmitOfferRequest{Price: 1}, service.ErrInvalidRequestID},
		{"missing side", domain.Actor{UserID: "driver-1"}, service.SubmitOfferRequest{RequestID: req.ID, Price: 1}, service.ErrInvalidActor},
		{"unknown request", driver("driver-1"), service.SubmitOfferRequest{RequestID: "nope", Price: 1}, repository.ErrNotFound},
		{"outsider", driver("driver-2"), service.SubmitOfferRequest{RequestID: req.ID, Price: 1}, service.ErrNotParticipant},
		{"passenger posing as driver", driver("passenger-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 1}, service.ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.SubmitOffer(h.ctx, tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNegotiation_BudgetExhaustionExpiresSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	h.offer(driver("driver-1"), req.ID, 100000)
	counter := h.offer(passenger("passenger-1"), req.ID, 95000)

	_, err := h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 97000})
	require.ErrorIs(t, err, service.ErrBudgetExhausted)

	// The failed attempt itself is committed.
	session := h.session(req.ID)
	assert.Equal(t, domain.SessionStateExpired, session.State)
	assert.Zero(t, countActive(h.offers(req.ID)))

	canceled, err := h.store.Offers().GetByID(h.ctx, counter.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusCanceled, canceled.Status)

	expired := h.events(domain.TopicNegotiationExpired)
	require.Len(t, expired, 1)
	payload := decode[service.NegotiationExpiredEvent](t, expired[0].Payload)
	assert.Equal(t, domain.SideDriver, payload.ExhaustedSide)

	_, err = h.engine.SubmitOffer(h.ctx, passenger("passenger-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 96000})
	assert.ErrorIs(t, err, service.ErrNegotiationFinished)
}

func TestNegotiation_AtMostOneActiveOffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	prices := []int64{100000, 92000, 99000, 93000, 98000}
	for i, price := range prices {
		actor := driver("driver-1")
		if i%2 == 1 {
			actor = passenger("passenger-1")
		}
		h.offer(actor, req.ID, price)
		assert.Equal(t, 1, countActive(h.offers(req.ID)), "after move %d", i+1)
	}
}

// ──────────────────────────────────────────────
// 2. RESPONDING TO OFFERS
// ──────────────────────────────────────────────

func TestRejectOffer_TurnPassesToRejector(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	rejected, err := h.engine.RejectOffer(h.ctx, passenger("passenger-1"), service.RejectOfferRequest{
		OfferID: offer.ID,
		Reason:  "too expensive",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusRejected, rejected.Status)
	assert.Equal(t, "too expensive", rejected.ResponseReason)

	session := h.session(req.ID)
	assert.Equal(t, domain.SidePassenger, session.NextTurn)
	assert.Equal(t, domain.SessionStateActive, session.State)

	_, err = h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{RequestID: req.ID, Price: 99000})
	assert.ErrorIs(t, err, service.ErrWrongTurn)

	h.offer(passenger("passenger-1"), req.ID, 93000)
	assert.Len(t, h.events(domain.TopicOfferRejected), 1)
}

func TestRejectOffer_ExpiresWhenRejectorIsOutOfMoves(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	h.offer(driver("driver-1"), req.ID, 100000)
	counter := h.offer(passenger("passenger-1"), req.ID, 95000)

	_, err := h.engine.RejectOffer(h.ctx, driver("driver-1"), service.RejectOfferRequest{OfferID: counter.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStateExpired, h.session(req.ID).State)
	assert.Len(t, h.events(domain.TopicNegotiationExpired), 1)
}

func TestRespondOffer_Rules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	first := h.offer(driver("driver-1"), req.ID, 100000)

	_, err := h.engine.AcceptOffer(h.ctx, driver("driver-1"), service.AcceptOfferRequest{OfferID: first.ID})
	assert.ErrorIs(t, err, service.ErrNotCounterparty)

	_, err = h.engine.RejectOffer(h.ctx, driver("driver-1"), service.RejectOfferRequest{OfferID: first.ID})
	assert.ErrorIs(t, err, service.ErrNotCounterparty)

	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-2"), service.AcceptOfferRequest{OfferID: first.ID})
	assert.ErrorIs(t, err, service.ErrNotParticipant)

	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// A superseded offer can no longer be accepted.
	h.offer(passenger("passenger-1"), req.ID, 95000)
	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: first.ID})
	assert.ErrorIs(t, err, service.ErrOfferNotActive)

	assert.Equal(t, 3, h.trip(trip.ID).SeatsAvailable)
}

func TestAcceptOffer_StaleVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	view, err := h.engine.GetNegotiation(h.ctx, driver("driver-1"), req.ID)
	require.NoError(t, err)
	pinned := view.Version

	offer, err := h.engine.SubmitOffer(h.ctx, driver("driver-1"), service.SubmitOfferRequest{
		RequestID:       req.ID,
		Price:           100000,
		ExpectedVersion: &pinned,
	})
	require.NoError(t, err)

	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{
		OfferID:         offer.ID,
		ExpectedVersion: &pinned,
	})
	require.ErrorIs(t, err, service.ErrStaleVersion)
	assert.True(t, service.IsRetryable(err))

	current := h.session(req.ID).Version
	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{
		OfferID:         offer.ID,
		ExpectedVersion: &current,
	})
	require.NoError(t, err)
}

func TestAcceptOffer_TripNoLongerBookable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 1)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	// Another request takes the only seat first.
	other := h.request(trip.ID, "passenger-2", 1, 90000)
	_, err := h.requests.AcceptRequest(h.ctx, "driver-1", other.ID)
	require.NoError(t, err)

	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: offer.ID})
	require.ErrorIs(t, err, service.ErrInsufficientCapacity)

	// Nothing of the failed acceptance is visible.
	stored, err := h.store.Offers().GetByID(h.ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusActive, stored.Status)
	assert.Equal(t, domain.SessionStateActive, h.session(req.ID).State)
	assert.Empty(t, h.events(domain.TopicOfferAccepted))
}

// ──────────────────────────────────────────────
// 3. WITHDRAWING OFFERS
// ──────────────────────────────────────────────

func TestCancelOffer_ReturnsTurnWithoutRefund(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	_, err := h.engine.CancelOffer(h.ctx, passenger("passenger-1"), service.CancelOfferRequest{OfferID: offer.ID})
	assert.ErrorIs(t, err, service.ErrNotProposer)

	canceled, err := h.engine.CancelOffer(h.ctx, driver("driver-1"), service.CancelOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusCanceled, canceled.Status)

	session := h.session(req.ID)
	assert.Equal(t, domain.SideDriver, session.NextTurn)
	assert.Empty(t, session.LastOfferID)
	assert.Equal(t, 2, session.MovesLeft(domain.SideDriver))

	again, err := h.engine.CancelOffer(h.ctx, driver("driver-1"), service.CancelOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusCanceled, again.Status)
	assert.Len(t, h.events(domain.TopicOfferCanceled), 1)

	_, err = h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: offer.ID})
	assert.ErrorIs(t, err, service.ErrOfferNotActive)

	next := h.offer(driver("driver-1"), req.ID, 99000)
	assert.Equal(t, 2, next.Seq)
}

// ──────────────────────────────────────────────
// 4. NEGOTIATION VIEW
// ──────────────────────────────────────────────

func TestGetNegotiation_FreshSessionIsOpenToBoth(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)

	for _, actor := range []domain.Actor{driver("driver-1"), passenger("passenger-1")} {
		view, err := h.engine.GetNegotiation(h.ctx, actor, req.ID)
		require.NoError(t, err)
		assert.Empty(t, view.NextTurn)
		assert.True(t, view.CanPropose, actor.Side)
		assert.False(t, view.CanAccept || view.CanReject || view.CanCancel, actor.Side)
	}
}

func TestGetNegotiation_ProjectsPerSide(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	mine, err := h.engine.GetNegotiation(h.ctx, driver("driver-1"), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SidePassenger, mine.NextTurn)
	assert.Equal(t, offer.ID, mine.ActiveOfferID)
	assert.Equal(t, service.SideMoves{Used: 1, Left: 2}, mine.Mine)
	assert.False(t, mine.CanPropose)
	assert.False(t, mine.CanAccept)
	assert.False(t, mine.CanReject)
	assert.True(t, mine.CanCancel)

	theirs, err := h.engine.GetNegotiation(h.ctx, passenger("passenger-1"), req.ID)
	require.NoError(t, err)
	assert.Equal(t, service.SideMoves{Used: 0, Left: 3}, theirs.Mine)
	assert.Equal(t, service.SideMoves{Used: 1, Left: 2}, theirs.Driver)
	assert.True(t, theirs.CanPropose)
	assert.True(t, theirs.CanAccept)
	assert.True(t, theirs.CanReject)
	assert.False(t, theirs.CanCancel)
	require.Len(t, theirs.Offers, 1)

	_, err = h.engine.GetNegotiation(h.ctx, passenger("passenger-2"), req.ID)
	assert.ErrorIs(t, err, service.ErrNotParticipant)
}

func TestGetNegotiation_ClosedAfterAcceptance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	trip := h.seedTrip("driver-1", 3)
	req := h.request(trip.ID, "passenger-1", 1, 90000)
	offer := h.offer(driver("driver-1"), req.ID, 100000)

	_, err := h.engine.AcceptOffer(h.ctx, passenger("passenger-1"), service.AcceptOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)

	view, err := h.engine.GetNegotiation(h.ctx, passenger("passenger-1"), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStateAccepted, view.State)
	assert.Equal(t, offer.ID, view.AcceptedOfferID)
	assert.Empty(t, view.ActiveOfferID)
	assert.False(t, view.CanPropose || view.CanAccept || view.CanReject || view.CanCancel)
}
