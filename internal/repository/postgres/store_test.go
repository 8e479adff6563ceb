package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/repository/postgres"
	"carpool/internal/service"
	"carpool/migrations"
)

var testDB *sql.DB

// TestMain migrates the database named by TEST_DATABASE_URL once for the
// package. Without it every test is skipped.
func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(m.Run())
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("TestMain: open database: %v", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		log.Fatalf("TestMain: create goose provider: %v", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		log.Fatalf("TestMain: run migrations: %v", err)
	}

	testDB = db
	code := m.Run()
	db.Close()
	os.Exit(code)
}

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testDB == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return postgres.NewStore(testDB, 2*time.Second)
}

func seedTrip(t *testing.T, store *postgres.Store, seats int) *domain.Trip {
	t.Helper()

	trip := &domain.Trip{
		ID:             uuid.New().String(),
		DriverID:       "driver-" + uuid.New().String(),
		Status:         domain.TripStatusPublished,
		SeatsTotal:     seats,
		SeatsAvailable: seats,
		DepartureAt:    time.Now().Add(24 * time.Hour).UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Trips().Create(context.Background(), trip))
	return trip
}

func TestStore_RollbackDiscardsSeatsAndEvents(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, 2)
	eventID := uuid.New().String()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx repository.Tx) error {
		ok, err := tx.Trips().ReserveSeats(ctx, trip.ID, 1)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = tx.Outbox().Insert(ctx, &domain.OutboxEvent{
			ID:             eventID,
			Topic:          domain.TopicBookingCanceled,
			AggregateType:  domain.AggregateBooking,
			AggregateID:    trip.ID,
			Payload:        []byte(`{}`),
			Status:         domain.OutboxStatusNew,
			IdempotencyKey: domain.TopicBookingCanceled + ":" + eventID,
			CreatedAt:      time.Now().UTC(),
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Trips().GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SeatsAvailable)

	_, err = store.Outbox().GetByID(ctx, eventID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ConcurrentAcceptsDoNotOversell(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, 1)

	transactor := service.NewBookingTransactor()
	outbox := service.NewOutboxWriter(nil)
	requests := service.NewRequestService(store, transactor, outbox, 3, nil)

	const passengers = 5
	ids := make([]string, passengers)
	for i := range passengers {
		req, err := requests.CreateRequest(ctx, "passenger-"+uuid.New().String(), service.CreateRequestInput{
			TripID:   trip.ID,
			Seats:    1,
			Price:    50000,
			Currency: "EUR",
		})
		require.NoError(t, err)
		ids[i] = req.ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := requests.AcceptRequest(ctx, trip.DriverID, id); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)

	got, err := store.Trips().GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SeatsAvailable)
}

func TestStore_LeaseSkipsLockedRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id := uuid.New().String()
	inserted, err := store.Outbox().Insert(ctx, &domain.OutboxEvent{
		ID:             id,
		Topic:          domain.TopicRequestCreated,
		AggregateType:  domain.AggregateRequest,
		AggregateID:    id,
		Payload:        []byte(`{}`),
		Status:         domain.OutboxStatusNew,
		IdempotencyKey: domain.TopicRequestCreated + ":" + id,
		CreatedAt:      now,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	dup, err := store.Outbox().Insert(ctx, &domain.OutboxEvent{
		ID:             uuid.New().String(),
		Topic:          domain.TopicRequestCreated,
		AggregateType:  domain.AggregateRequest,
		AggregateID:    id,
		Payload:        []byte(`{}`),
		Status:         domain.OutboxStatusNew,
		IdempotencyKey: domain.TopicRequestCreated + ":" + id,
		CreatedAt:      now,
	})
	require.NoError(t, err)
	assert.False(t, dup)

	owner := "test-" + uuid.New().String()
	leased, err := store.Outbox().LeaseBatch(ctx, owner, now.Add(time.Second), 1000)
	require.NoError(t, err)

	var found bool
	for _, e := range leased {
		if e.ID == id {
			found = true
		}
	}
	require.True(t, found)

	ok, err := store.Outbox().MarkDone(ctx, id, "someone-else", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Outbox().MarkDone(ctx, id, owner, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ListingsAndCancellationColumns(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, 3)
	passengerID := "passenger-" + uuid.New().String()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var bookingIDs []string
	for i := range 3 {
		req := &domain.TripRequest{
			ID:          uuid.New().String(),
			TripID:      trip.ID,
			PassengerID: passengerID,
			Seats:       1,
			Price:       1000,
			Currency:    "USD",
			Status:      domain.RequestStatusCanceled,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Requests().Create(ctx, req))

		b := &domain.Booking{
			ID:          uuid.New().String(),
			TripID:      trip.ID,
			RequestID:   req.ID,
			PassengerID: passengerID,
			Seats:       1,
			Price:       1000,
			Currency:    "USD",
			Status:      domain.BookingStatusConfirmed,
			CreatedAt:   req.CreatedAt,
		}
		require.NoError(t, store.Bookings().Create(ctx, b))
		bookingIDs = append(bookingIDs, b.ID)
	}

	ok, err := store.Bookings().Cancel(ctx, bookingIDs[0], domain.BookingCancellation{Reason: "sick", Fee: 100, Refund: 900, At: base})
	require.NoError(t, err)
	require.True(t, ok)

	items, total, err := store.Bookings().ListByPassenger(ctx, passengerID, repository.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, bookingIDs[2], items[0].ID)
	assert.Equal(t, bookingIDs[1], items[1].ID)

	items, total, err = store.Bookings().ListByDriver(ctx, trip.DriverID, repository.ListFilter{Status: string(domain.BookingStatusCanceled)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100), items[0].CancellationFee)
	assert.Equal(t, int64(900), items[0].RefundAmount)

	_, total, err = store.Requests().ListByPassenger(ctx, passengerID, repository.ListFilter{TripID: "not-a-uuid"})
	require.NoError(t, err)
	assert.Zero(t, total)

	reqs, total, err := store.Requests().ListByDriver(ctx, trip.DriverID, repository.ListFilter{TripID: trip.ID, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, reqs, 1)
}
