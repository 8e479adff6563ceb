package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/repository/memory"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// HARNESS
// ──────────────────────────────────────────────

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	engine   *service.NegotiationEngine
	requests *service.RequestService
	bookings *service.BookingService
}

// Fee kept when a passenger cancels a booking in these tests.
const cancelFeePercent = 10

func newHarness(t *testing.T, maxMovesPerSide int) *harness {
	t.Helper()

	store := memory.NewStore()
	transactor := service.NewBookingTransactor()
	outbox := service.NewOutboxWriter(nil)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		engine:   service.NewNegotiationEngine(store, transactor, outbox, maxMovesPerSide, nil),
		requests: service.NewRequestService(store, transactor, outbox, maxMovesPerSide, nil),
		bookings: service.NewBookingService(store, transactor, outbox, cancelFeePercent, nil),
	}
}

func driver(id string) domain.Actor    { return domain.Actor{UserID: id, Side: domain.SideDriver} }
func passenger(id string) domain.Actor { return domain.Actor{UserID: id, Side: domain.SidePassenger} }

// seedTrip publishes a trip with the given seat count.
func (h *harness) seedTrip(driverID string, seats int) *domain.Trip {
	h.t.Helper()

	trip := &domain.Trip{
		ID:             uuid.New().String(),
		DriverID:       driverID,
		Status:         domain.TripStatusPublished,
		SeatsTotal:     seats,
		SeatsAvailable: seats,
		DepartureAt:    time.Now().Add(24 * time.Hour),
		CreatedAt:      time.Now(),
	}
	require.NoError(h.t, h.store.Trips().Create(h.ctx, trip))
	return trip
}

// seedBooking stores a confirmed one-seat booking on a new trip in status,
// writing the rows directly so trips past departure can carry bookings.
func (h *harness) seedBooking(status domain.TripStatus, driverID, passengerID string, price int64) *domain.Booking {
	h.t.Helper()

	now := time.Now()
	trip := &domain.Trip{
		ID:             uuid.New().String(),
		DriverID:       driverID,
		Status:         status,
		SeatsTotal:     3,
		SeatsAvailable: 2,
		DepartureAt:    now.Add(-time.Hour),
		CreatedAt:      now,
	}
	require.NoError(h.t, h.store.Trips().Create(h.ctx, trip))

	req := &domain.TripRequest{
		ID:          uuid.New().String(),
		TripID:      trip.ID,
		PassengerID: passengerID,
		Seats:       1,
		Price:       price,
		Currency:    "USD",
		Status:      domain.RequestStatusAccepted,
		CreatedAt:   now,
		RespondedAt: now,
	}
	require.NoError(h.t, h.store.Requests().Create(h.ctx, req))

	booking := &domain.Booking{
		ID:          uuid.New().String(),
		TripID:      trip.ID,
		RequestID:   req.ID,
		PassengerID: passengerID,
		Seats:       1,
		Price:       price,
		Currency:    "USD",
		Status:      domain.BookingStatusConfirmed,
		CreatedAt:   now,
	}
	require.NoError(h.t, h.store.Bookings().Create(h.ctx, booking))
	return booking
}

// request creates a pending request for seats at price.
func (h *harness) request(tripID, passengerID string, seats int, price int64) *domain.TripRequest {
	h.t.Helper()

	req, err := h.requests.CreateRequest(h.ctx, passengerID, service.CreateRequestInput{
		TripID:   tripID,
		Seats:    seats,
		Price:    price,
		Currency: "usd",
	})
	require.NoError(h.t, err)
	return req
}

func (h *harness) offer(actor domain.Actor, requestID string, price int64) *domain.Offer {
	h.t.Helper()

	o, err := h.engine.SubmitOffer(h.ctx, actor, service.SubmitOfferRequest{RequestID: requestID, Price: price})
	require.NoError(h.t, err)
	return o
}

func (h *harness) trip(id string) *domain.Trip {
	h.t.Helper()

	trip, err := h.store.Trips().GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return trip
}

func (h *harness) session(requestID string) *domain.NegotiationSession {
	h.t.Helper()

	s, err := h.store.Sessions().GetByRequestID(h.ctx, requestID)
	require.NoError(h.t, err)
	return s
}

func (h *harness) offers(requestID string) []*domain.Offer {
	h.t.Helper()

	offers, err := h.store.Offers().ListByRequest(h.ctx, requestID)
	require.NoError(h.t, err)
	return offers
}

// topics returns the topics of every recorded outbox event, oldest first.
func (h *harness) topics() []string {
	h.t.Helper()

	var out []string
	for _, status := range []domain.OutboxStatus{domain.OutboxStatusNew, domain.OutboxStatusProcessing, domain.OutboxStatusDone, domain.OutboxStatusFailed} {
		events, err := h.store.Outbox().ListByStatus(h.ctx, status, 1000)
		require.NoError(h.t, err)
		for _, e := range events {
			out = append(out, e.Topic)
		}
	}
	return out
}

// events returns the pending events of topic.
func (h *harness) events(topic string) []*domain.OutboxEvent {
	h.t.Helper()

	events, err := h.store.Outbox().ListByStatus(h.ctx, domain.OutboxStatusNew, 1000)
	require.NoError(h.t, err)

	var out []*domain.OutboxEvent
	for _, e := range events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(payload, &v))
	return v
}

func countActive(offers []*domain.Offer) int {
	n := 0
	for _, o := range offers {
		if o.Status == domain.OfferStatusActive {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// DELIVERY FAKES
// ──────────────────────────────────────────────

// mockPublisher is a testify mock of service.Publisher.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, msg service.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// recordingSender keeps every notification it is asked to send.
type recordingSender struct {
	mu   sync.Mutex
	sent []service.Notification
	fail error
}

func (s *recordingSender) Send(_ context.Context, n service.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) Sent() []service.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.Notification(nil), s.sent...)
}

// memoryDeduper is an in-process service.Deduper with expiring keys.
type memoryDeduper struct {
	mu   sync.Mutex
	now  func() time.Time
	keys map[string]dedupEntry
}

type dedupEntry struct {
	done    bool
	expires time.Time
}

func newMemoryDeduper(now func() time.Time) *memoryDeduper {
	return &memoryDeduper{now: now, keys: make(map[string]dedupEntry)}
}

func (d *memoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (service.DedupState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.keys[key]; ok && e.expires.After(d.now()) {
		if e.done {
			return service.DedupDone, nil
		}
		return service.DedupPending, nil
	}
	d.keys[key] = dedupEntry{expires: d.now().Add(ttl)}
	return service.DedupClaimed, nil
}

func (d *memoryDeduper) Complete(_ context.Context, key string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = dedupEntry{done: true, expires: d.now().Add(ttl)}
	return nil
}

func (d *memoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func userID(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}
