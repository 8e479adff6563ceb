package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3, cfg.Negotiation.MaxMovesPerSide)
	assert.Equal(t, 3*time.Second, cfg.Negotiation.LockTimeout)
	assert.Equal(t, 2*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Outbox.LeaseTTL)
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 10, cfg.Booking.CancelFeePercent)
	assert.Equal(t, ChannelLog, cfg.Outbox.Channel)
	assert.NotEmpty(t, cfg.Outbox.InstanceID)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("NEGOTIATION_MAX_MOVES_PER_SIDE", "5")
	t.Setenv("OUTBOX_CHANNEL", "KAFKA")
	t.Setenv("OUTBOX_MAX_BACKOFF", "90s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("OUTBOX_INSTANCE_ID", "dispatcher-a")
	t.Setenv("BOOKING_CANCEL_FEE_PERCENT", "25")

	cfg := Load()

	assert.Equal(t, 5, cfg.Negotiation.MaxMovesPerSide)
	assert.Equal(t, ChannelKafka, cfg.Outbox.Channel)
	assert.Equal(t, 90*time.Second, cfg.Outbox.MaxBackoff)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "dispatcher-a", cfg.Outbox.InstanceID)
	assert.Equal(t, 25, cfg.Booking.CancelFeePercent)
	require.NoError(t, cfg.Validate())
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("OUTBOX_LEASE_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Outbox.LeaseTTL)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Load()
	cfg.Negotiation.MaxMovesPerSide = 0
	cfg.Outbox.BatchSize = 0
	cfg.Outbox.Channel = "carrier-pigeon"
	cfg.Outbox.BaseBackoff = time.Minute
	cfg.Outbox.MaxBackoff = time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEGOTIATION_MAX_MOVES_PER_SIDE")
	assert.Contains(t, err.Error(), "OUTBOX_BATCH_SIZE")
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "OUTBOX_BASE_BACKOFF")
}

func TestValidate_RejectsUncappedBackoff(t *testing.T) {
	cfg := Load()
	cfg.Outbox.MaxBackoff = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTBOX_MAX_BACKOFF must be positive")
}

func TestValidate_CancelFeePercentRange(t *testing.T) {
	for _, percent := range []int{-1, 101} {
		cfg := Load()
		cfg.Booking.CancelFeePercent = percent

		err := cfg.Validate()
		require.Error(t, err, "percent %d", percent)
		assert.Contains(t, err.Error(), "BOOKING_CANCEL_FEE_PERCENT")
	}

	cfg := Load()
	cfg.Booking.CancelFeePercent = 100
	require.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "carpool", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=carpool sslmode=disable", c.DSN())
}
