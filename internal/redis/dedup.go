package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/service"
)

// Marker values of a dedup key.
const (
	dedupPending = "pending"
	dedupDone    = "done"
)

// DedupStore records message keys in Redis so redelivered messages can be
// recognized. A key is pending while a delivery is in flight and done once
// it succeeded; a pending key left by a crashed process expires on its own.
type DedupStore struct {
	client redis.Cmdable
	prefix string
}

// NewDedupStore creates a new DedupStore.
func NewDedupStore(client redis.Cmdable) *DedupStore {
	return &DedupStore{client: client, prefix: "dedup:"}
}

// Claim marks key pending for ttl. If the key exists it reports whether the
// earlier delivery finished.
func (s *DedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (service.DedupState, error) {
	claimed, err := s.client.SetNX(ctx, s.prefix+key, dedupPending, ttl).Result()
	if err != nil {
		return 0, err
	}
	if claimed {
		return service.DedupClaimed, nil
	}

	marker, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired in between; the next attempt claims it.
		return service.DedupPending, nil
	}
	if err != nil {
		return 0, err
	}
	if marker == dedupDone {
		return service.DedupDone, nil
	}
	return service.DedupPending, nil
}

// Complete marks key done for ttl.
func (s *DedupStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, dedupDone, ttl).Err()
}

// Release forgets key so the message can be processed again.
func (s *DedupStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
