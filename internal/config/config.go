package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Delivery channels the outbox dispatcher can publish to.
const (
	ChannelKafka = "kafka"
	ChannelRedis = "redis"
	ChannelLog   = "log"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NewRelic    NewRelicConfig
	Log         LogConfig
	Negotiation NegotiationConfig
	Booking     BookingConfig
	Outbox      OutboxConfig
	Kafka       KafkaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Development bool
}

// NegotiationConfig holds the negotiation rules of this deployment.
type NegotiationConfig struct {
	MaxMovesPerSide int
	LockTimeout     time.Duration
}

// BookingConfig holds the booking cancellation policy.
type BookingConfig struct {
	// Share of the price, in percent, kept when a passenger cancels.
	CancelFeePercent int
}

// OutboxConfig holds dispatcher configuration.
type OutboxConfig struct {
	Interval     time.Duration
	BatchSize    int
	LeaseTTL     time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Channel      string
	InstanceID   string
	StreamPrefix string
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "carpool"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "carpool-negotiation"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBoolEnv("LOG_DEVELOPMENT", false),
		},
		Negotiation: NegotiationConfig{
			MaxMovesPerSide: getIntEnv("NEGOTIATION_MAX_MOVES_PER_SIDE", 3),
			LockTimeout:     getDurationEnv("NEGOTIATION_LOCK_TIMEOUT", 3*time.Second),
		},
		Booking: BookingConfig{
			CancelFeePercent: getIntEnv("BOOKING_CANCEL_FEE_PERCENT", 10),
		},
		Outbox: OutboxConfig{
			Interval:     getDurationEnv("OUTBOX_INTERVAL", 2*time.Second),
			BatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 50),
			LeaseTTL:     getDurationEnv("OUTBOX_LEASE_TTL", 30*time.Second),
			MaxAttempts:  getIntEnv("OUTBOX_MAX_ATTEMPTS", 10),
			BaseBackoff:  getDurationEnv("OUTBOX_BASE_BACKOFF", time.Second),
			MaxBackoff:   getDurationEnv("OUTBOX_MAX_BACKOFF", 5*time.Minute),
			Channel:      strings.ToLower(getEnv("OUTBOX_CHANNEL", ChannelLog)),
			InstanceID:   getEnv("OUTBOX_INSTANCE_ID", defaultInstanceID()),
			StreamPrefix: getEnv("OUTBOX_STREAM_PREFIX", "events:"),
		},
		Kafka: KafkaConfig{
			Brokers:     getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "carpool."),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Negotiation.MaxMovesPerSide < 1 {
		errs = append(errs, errors.New("NEGOTIATION_MAX_MOVES_PER_SIDE must be at least 1"))
	}
	if c.Negotiation.LockTimeout < 0 {
		errs = append(errs, errors.New("NEGOTIATION_LOCK_TIMEOUT must not be negative"))
	}
	if c.Booking.CancelFeePercent < 0 || c.Booking.CancelFeePercent > 100 {
		errs = append(errs, errors.New("BOOKING_CANCEL_FEE_PERCENT must be between 0 and 100"))
	}
	if c.Outbox.Interval <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL must be positive"))
	}
	if c.Outbox.BatchSize < 1 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be at least 1"))
	}
	if c.Outbox.LeaseTTL <= 0 {
		errs = append(errs, errors.New("OUTBOX_LEASE_TTL must be positive"))
	}
	if c.Outbox.MaxAttempts < 1 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Outbox.MaxBackoff <= 0 {
		errs = append(errs, errors.New("OUTBOX_MAX_BACKOFF must be positive"))
	}
	if c.Outbox.BaseBackoff <= 0 || c.Outbox.MaxBackoff < c.Outbox.BaseBackoff {
		errs = append(errs, errors.New("OUTBOX_BASE_BACKOFF must be positive and not above OUTBOX_MAX_BACKOFF"))
	}
	if c.Outbox.InstanceID == "" {
		errs = append(errs, errors.New("OUTBOX_INSTANCE_ID must not be empty"))
	}

	switch c.Outbox.Channel {
	case ChannelLog, ChannelRedis:
	case ChannelKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka channel"))
		}
	default:
		errs = append(errs, fmt.Errorf("OUTBOX_CHANNEL %q is not one of kafka, redis, log", c.Outbox.Channel))
	}

	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("NEW_RELIC_LICENSE_KEY is required when New Relic is enabled"))
	}

	return errors.Join(errs...)
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dispatcher"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
