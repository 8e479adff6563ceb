package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/service"
)

// Stream publishing defaults.
const (
	DefaultStreamPrefix = "events:"
	DefaultStreamMaxLen = 100000
	streamDedupTTL      = 24 * time.Hour
)

// appendScript sets the guard of a message and appends it to the stream in
// one step. It replies nil when the guard already exists.
//
// KEYS[1] guard, KEYS[2] stream; ARGV[1] guard ttl in seconds, ARGV[2] max
// stream length, ARGV[3:] field/value pairs.
const appendScript = `
if not redis.call('SET', KEYS[1], '1', 'NX', 'EX', ARGV[1]) then
	return false
end
return redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[2], '*', unpack(ARGV, 3))
`

// StreamPublisher appends outbox messages to one Redis stream per topic.
// A guard keyed by the message id is written together with the entry, so a
// redelivered message is appended at most once.
type StreamPublisher struct {
	client redis.Cmdable
	prefix string
	maxLen int64
}

// NewStreamPublisher creates a new StreamPublisher.
func NewStreamPublisher(client redis.Cmdable, prefix string) *StreamPublisher {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &StreamPublisher{client: client, prefix: prefix, maxLen: DefaultStreamMaxLen}
}

// Publish appends msg to the stream of its topic.
func (p *StreamPublisher) Publish(ctx context.Context, msg service.Message) error {
	keys := []string{p.prefix + "sent:" + msg.ID, p.prefix + msg.Topic}
	args := []any{
		int64(streamDedupTTL / time.Second),
		p.maxLen,
		"id", msg.ID,
		"topic", msg.Topic,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"idempotency_key", msg.IdempotencyKey,
		"attempt", msg.Attempt,
		"payload", string(msg.Payload),
	}

	err := p.client.Eval(ctx, appendScript, keys, args...).Err()
	if errors.Is(err, redis.Nil) {
		// Appended by an earlier delivery.
		return nil
	}
	if err != nil {
		return fmt.Errorf("append %s to stream: %w", msg.ID, err)
	}
	return nil
}
