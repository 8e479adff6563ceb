package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"carpool/internal/app"
	"carpool/internal/config"
	"carpool/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var once bool
	var instanceID string

	flagSet := pflag.NewFlagSet("dispatcher", pflag.ContinueOnError)
	flagSet.BoolVar(&once, "once", false, "dispatch a single batch and exit")
	flagSet.StringVar(&instanceID, "instance-id", "", "lease owner name (default: OUTBOX_INSTANCE_ID or host-pid)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Load()
	if instanceID != "" {
		cfg.Outbox.InstanceID = instanceID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nrApp := app.NewRelicApp(cfg.NewRelic, logger)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := app.NewDatabase(connectCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Redis backs the stream channel and notification dedup; the Kafka
	// channel runs without it.
	var redisClient redis.Cmdable
	if cfg.Outbox.Channel != config.ChannelKafka {
		client, err := app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		redisClient = client
	}

	publisher, closer, err := app.NewPublisher(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	store := postgres.NewStore(db, cfg.Negotiation.LockTimeout)
	dispatcher := app.NewDispatcher(store, publisher, cfg.Outbox, nrApp, logger)

	if once {
		res, err := dispatcher.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("single batch dispatched",
			zap.Int64("reclaimed", res.Reclaimed),
			zap.Int("leased", res.Leased),
			zap.Int("delivered", res.Delivered),
			zap.Int("retried", res.Retried),
			zap.Int("failed", res.Failed),
		)
		return nil
	}

	dispatcher.Run(ctx)
	return nil
}
