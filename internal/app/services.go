package app

import (
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/handler"
	"carpool/internal/repository"
	"carpool/internal/service"
)

// Services bundles the core services bound to one store.
type Services struct {
	Negotiation *service.NegotiationEngine
	Requests    *service.RequestService
	Bookings    *service.BookingService
	OutboxAdmin *service.OutboxAdmin
}

// NewServices wires the core services on top of store.
func NewServices(store repository.Store, cfg config.NegotiationConfig, booking config.BookingConfig, logger *zap.Logger) *Services {
	transactor := service.NewBookingTransactor()
	outbox := service.NewOutboxWriter(logger)

	return &Services{
		Negotiation: service.NewNegotiationEngine(store, transactor, outbox, cfg.MaxMovesPerSide, logger),
		Requests:    service.NewRequestService(store, transactor, outbox, cfg.MaxMovesPerSide, logger),
		Bookings:    service.NewBookingService(store, transactor, outbox, booking.CancelFeePercent, logger),
		OutboxAdmin: service.NewOutboxAdmin(store.Outbox(), logger),
	}
}

// Handlers builds the HTTP handlers of s into deps.
func (s *Services) Handlers(deps RouterDeps) RouterDeps {
	deps.NegotiationHandler = handler.NewNegotiationHandler(s.Negotiation)
	deps.RequestHandler = handler.NewRequestHandler(s.Requests)
	deps.BookingHandler = handler.NewBookingHandler(s.Bookings)
	deps.OutboxHandler = handler.NewOutboxHandler(s.OutboxAdmin)
	return deps
}

// NewDispatcher builds an outbox dispatcher for store.
func NewDispatcher(store repository.Store, publisher service.Publisher, cfg config.OutboxConfig, nrApp *newrelic.Application, logger *zap.Logger) *service.Dispatcher {
	return service.NewDispatcher(store.Outbox(), publisher, service.DispatcherConfig{
		InstanceID:  cfg.InstanceID,
		Interval:    cfg.Interval,
		BatchSize:   cfg.BatchSize,
		LeaseTTL:    cfg.LeaseTTL,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}, nrApp, logger)
}
