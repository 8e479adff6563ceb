package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	bookingService *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CancelBookingRequest is the HTTP request body for canceling a booking.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// BookingResponse is the HTTP response for a booking.
type BookingResponse struct {
	ID           string `json:"id"`
	TripID       string `json:"trip_id"`
	RequestID    string `json:"request_id"`
	PassengerID  string `json:"passenger_id"`
	Seats        int    `json:"seats"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CanceledAt   string `json:"canceled_at,omitempty"`
	CreatedAt    string `json:"created_at"`

	CancellationFee int64 `json:"cancellation_fee"`
	RefundAmount    int64 `json:"refund_amount"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:           b.ID,
		TripID:       b.TripID,
		RequestID:    b.RequestID,
		PassengerID:  b.PassengerID,
		Seats:        b.Seats,
		Price:        b.Price,
		Currency:     b.Currency,
		Status:       string(b.Status),
		CancelReason: b.CancelReason,
		CanceledAt:   formatTime(b.CanceledAt),
		CreatedAt:    formatTime(b.CreatedAt),

		CancellationFee: b.CancellationFee,
		RefundAmount:    b.RefundAmount,
	}
}

// GetBooking handles GET /v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// ListMyBookings handles GET /v1/me/bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SidePassenger)
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.bookingService.ListMyBookings(c.Request.Context(), actor.UserID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toListResponse(page, toBookingResponse))
}

// ListDriverBookings handles GET /v1/driver/bookings
func (h *BookingHandler) ListDriverBookings(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SideDriver)
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.bookingService.ListDriverBookings(c.Request.Context(), actor.UserID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toListResponse(page, toBookingResponse))
}
