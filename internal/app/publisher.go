package app

import (
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/messaging"
	internalRedis "carpool/internal/redis"
	"carpool/internal/service"
)

// NewPublisher builds the dispatcher's delivery channel. The returned
// closer releases channel resources and is never nil.
func NewPublisher(cfg *config.Config, redisClient redis.Cmdable, logger *zap.Logger) (service.Publisher, io.Closer, error) {
	switch cfg.Outbox.Channel {
	case config.ChannelKafka:
		publisher := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.Kafka.Brokers), cfg.Kafka.TopicPrefix)
		return publisher, publisher, nil

	case config.ChannelRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("outbox channel %q needs redis", cfg.Outbox.Channel)
		}
		return internalRedis.NewStreamPublisher(redisClient, cfg.Outbox.StreamPrefix), nopCloser{}, nil

	case config.ChannelLog:
		var dedup service.Deduper
		if redisClient != nil {
			dedup = internalRedis.NewDedupStore(redisClient)
		}
		return service.NewNotificationService(service.NewLogSender(logger), dedup, logger), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown outbox channel %q", cfg.Outbox.Channel)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
