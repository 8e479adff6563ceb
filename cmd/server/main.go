package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"carpool/internal/app"
	"carpool/internal/config"
	"carpool/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var migrate, withDispatcher bool

	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	flagSet.BoolVar(&withDispatcher, "with-dispatcher", false, "run the outbox dispatcher inside the server process")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load configuration.
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic first so the database and Redis are instrumented.
	nrApp := app.NewRelicApp(cfg.NewRelic, logger)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if migrate {
		if err := app.Migrate(ctx, db, logger); err != nil {
			return err
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Wire dependencies.
	store := postgres.NewStore(db, cfg.Negotiation.LockTimeout)
	services := app.NewServices(store, cfg.Negotiation, cfg.Booking, logger)

	router := app.NewRouter(services.Handlers(app.RouterDeps{
		RedisClient: redisClient,
		NewRelicApp: nrApp,
		Logger:      logger,
	}))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if withDispatcher {
		publisher, closer, err := app.NewPublisher(cfg, redisClient, logger)
		if err != nil {
			return err
		}
		defer closer.Close()

		dispatcher := app.NewDispatcher(store, publisher, cfg.Outbox, nrApp, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(runCtx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-runCtx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	wg.Wait()

	logger.Info("server exited")
	return nil
}
