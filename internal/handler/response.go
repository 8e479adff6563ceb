package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/middleware"
	"carpool/internal/repository"
	"carpool/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	retryable := service.IsRetryable(err)
	if retryable {
		middleware.MarkRetryable(c)
	}
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error(), Retryable: retryable})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest answers a malformed body or parameter.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRequestID),
		errors.Is(err, service.ErrInvalidOfferID),
		errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidActor),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidSeats),
		errors.Is(err, service.ErrInvalidCurrency),
		errors.Is(err, service.ErrInvalidListQuery):
		return http.StatusBadRequest

	// Forbidden
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotCounterparty),
		errors.Is(err, service.ErrNotProposer),
		errors.Is(err, service.ErrSelfRequest):
		return http.StatusForbidden

	// Protocol violations - Unprocessable
	case errors.Is(err, service.ErrWrongTurn),
		errors.Is(err, service.ErrOwnOfferPending),
		errors.Is(err, service.ErrBudgetExhausted):
		return http.StatusUnprocessableEntity

	// Conflict errors, including the retryable concurrency failures
	case errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, service.ErrNegotiationFinished),
		errors.Is(err, service.ErrOfferNotActive),
		errors.Is(err, service.ErrOfferNotCurrent),
		errors.Is(err, service.ErrInsufficientCapacity),
		errors.Is(err, service.ErrRequestNotPending),
		errors.Is(err, service.ErrTripNotBookable),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrBookingNotActive),
		errors.Is(err, service.ErrTripDeparted),
		errors.Is(err, service.ErrEventNotFailed),
		errors.Is(err, service.ErrStaleVersion),
		errors.Is(err, service.ErrLockTimeout):
		return http.StatusConflict

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// formatTime renders t as RFC 3339, or empty for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// actorFrom resolves the caller as a negotiating party or answers 400.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		badRequest(c, middleware.HeaderUserRole+" must be driver or passenger")
		return domain.Actor{}, false
	}
	return actor, true
}
