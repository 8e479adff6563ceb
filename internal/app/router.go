package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"carpool/internal/handler"
	"carpool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	NegotiationHandler *handler.NegotiationHandler
	RequestHandler     *handler.RequestHandler
	BookingHandler     *handler.BookingHandler
	OutboxHandler      *handler.OutboxHandler
	RedisClient        redis.Cmdable // optional; disables Idempotency-Key replay when nil
	NewRelicApp        *newrelic.Application
	Logger             *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLogMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware())
	if deps.RedisClient != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, logger))
	}
	{
		// Trip request routes.
		v1.POST("/trips/:id/requests", deps.RequestHandler.CreateRequest)
		v1.GET("/trips/:id/requests/me", deps.RequestHandler.GetMyRequest)

		// Caller-scoped listings.
		v1.GET("/me/requests", deps.RequestHandler.ListMyRequests)
		v1.GET("/me/bookings", deps.BookingHandler.ListMyBookings)
		v1.GET("/driver/requests", deps.RequestHandler.ListDriverRequests)
		v1.GET("/driver/bookings", deps.BookingHandler.ListDriverBookings)

		requests := v1.Group("/requests")
		{
			requests.GET("/:id", deps.RequestHandler.GetRequest)
			requests.POST("/:id/cancel", deps.RequestHandler.CancelRequest)
			requests.POST("/:id/reject", deps.RequestHandler.RejectRequest)
			requests.POST("/:id/accept", deps.RequestHandler.AcceptRequest)

			// Negotiation routes.
			requests.GET("/:id/negotiation", deps.NegotiationHandler.GetNegotiation)
			requests.POST("/:id/offers", deps.NegotiationHandler.SubmitOffer)
		}

		// Offer routes.
		offers := v1.Group("/offers")
		{
			offers.POST("/:id/accept", deps.NegotiationHandler.AcceptOffer)
			offers.POST("/:id/reject", deps.NegotiationHandler.RejectOffer)
			offers.POST("/:id/cancel", deps.NegotiationHandler.CancelOffer)
		}

		// Booking routes.
		bookings := v1.Group("/bookings")
		{
			bookings.GET("/:id", deps.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", deps.BookingHandler.CancelBooking)
		}

		// Operator routes.
		admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/trips/:id/close-negotiations", deps.RequestHandler.CloseTripNegotiations)
			admin.GET("/outbox/failed", deps.OutboxHandler.ListFailed)
			admin.POST("/outbox/:id/requeue", deps.OutboxHandler.Requeue)
		}
	}

	return router
}
