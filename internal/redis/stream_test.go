package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/service"
)

func testMessage() service.Message {
	return service.Message{
		ID:             "evt-1",
		Topic:          "offer.created",
		AggregateType:  "offer",
		AggregateID:    "offer-1",
		IdempotencyKey: "offer.created:offer-1",
		Attempt:        1,
		Payload:        []byte(`{"offer_id":"offer-1"}`),
	}
}

var streamKeys = []string{"events:sent:evt-1", "events:offer.created"}

func streamArgs(msg service.Message) []any {
	return []any{
		int64(86400),
		int64(DefaultStreamMaxLen),
		"id", msg.ID,
		"topic", msg.Topic,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"idempotency_key", msg.IdempotencyKey,
		"attempt", msg.Attempt,
		"payload", string(msg.Payload),
	}
}

// ─── 1. STREAM PUBLISHER ───

func TestStreamPublisher_GuardAndAppendInOneScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewStreamPublisher(db, "")
	msg := testMessage()

	mock.ExpectEval(appendScript, streamKeys, streamArgs(msg)...).SetVal("1-0")

	require.NoError(t, pub.Publish(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamPublisher_SkipsAlreadyAppended(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewStreamPublisher(db, "")
	msg := testMessage()

	mock.ExpectEval(appendScript, streamKeys, streamArgs(msg)...).RedisNil()

	require.NoError(t, pub.Publish(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamPublisher_FailureLeavesNoGuard(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewStreamPublisher(db, "")
	msg := testMessage()

	// The script never ran, so nothing was guarded and the retry runs it again.
	mock.ExpectEval(appendScript, streamKeys, streamArgs(msg)...).SetErr(errors.New("connection reset"))
	mock.ExpectEval(appendScript, streamKeys, streamArgs(msg)...).SetVal("1-0")

	err := pub.Publish(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	require.NoError(t, pub.Publish(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─── 2. DEDUP STORE ───

func TestDedupStore_PendingUntilCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewDedupStore(db)
	ctx := context.Background()

	mock.ExpectSetNX("dedup:notified:evt-1", dedupPending, time.Minute).SetVal(true)
	mock.ExpectSetNX("dedup:notified:evt-1", dedupPending, time.Minute).SetVal(false)
	mock.ExpectGet("dedup:notified:evt-1").SetVal(dedupPending)
	mock.ExpectSet("dedup:notified:evt-1", dedupDone, time.Hour).SetVal("OK")
	mock.ExpectSetNX("dedup:notified:evt-1", dedupPending, time.Minute).SetVal(false)
	mock.ExpectGet("dedup:notified:evt-1").SetVal(dedupDone)

	state, err := store.Claim(ctx, "notified:evt-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, service.DedupClaimed, state)

	state, err = store.Claim(ctx, "notified:evt-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, service.DedupPending, state)

	require.NoError(t, store.Complete(ctx, "notified:evt-1", time.Hour))

	state, err = store.Claim(ctx, "notified:evt-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, service.DedupDone, state)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupStore_ExpiredMarkerIsPending(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewDedupStore(db)

	mock.ExpectSetNX("dedup:notified:evt-1", dedupPending, time.Minute).SetVal(false)
	mock.ExpectGet("dedup:notified:evt-1").RedisNil()

	state, err := store.Claim(context.Background(), "notified:evt-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, service.DedupPending, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupStore_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewDedupStore(db)

	mock.ExpectDel("dedup:notified:evt-1").SetVal(1)

	require.NoError(t, store.Release(context.Background(), "notified:evt-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
