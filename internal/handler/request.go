package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// RequestHandler handles HTTP requests for trip requests.
type RequestHandler struct {
	requestService *service.RequestService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// CreateRequestRequest is the HTTP request body for asking for seats.
type CreateRequestRequest struct {
	Seats    int    `json:"seats"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Message  string `json:"message"`
}

// RejectRequestRequest is the HTTP request body for declining a request.
type RejectRequestRequest struct {
	Reason string `json:"reason"`
}

// CloseNegotiationsRequest is the HTTP request body for closing a trip's negotiations.
type CloseNegotiationsRequest struct {
	Reason string `json:"reason"`
}

// RequestResponse is the HTTP response for a trip request.
type RequestResponse struct {
	ID              string `json:"id"`
	TripID          string `json:"trip_id"`
	PassengerID     string `json:"passenger_id"`
	Seats           int    `json:"seats"`
	Price           int64  `json:"price"`
	Currency        string `json:"currency"`
	Message         string `json:"message,omitempty"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	RespondedAt     string `json:"responded_at,omitempty"`
}

func toRequestResponse(r *domain.TripRequest) RequestResponse {
	return RequestResponse{
		ID:              r.ID,
		TripID:          r.TripID,
		PassengerID:     r.PassengerID,
		Seats:           r.Seats,
		Price:           r.Price,
		Currency:        r.Currency,
		Message:         r.Message,
		Status:          string(r.Status),
		RejectionReason: r.RejectionReason,
		CreatedAt:       formatTime(r.CreatedAt),
		RespondedAt:     formatTime(r.RespondedAt),
	}
}

// AcceptRequestResponse is the HTTP response for a directly accepted request.
type AcceptRequestResponse struct {
	Request RequestResponse `json:"request"`
	Booking BookingResponse `json:"booking"`
}

// CreateRequest handles POST /v1/trips/:id/requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SidePassenger)
	if !ok {
		return
	}

	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	created, err := h.requestService.CreateRequest(c.Request.Context(), actor.UserID, service.CreateRequestInput{
		TripID:   c.Param("id"),
		Seats:    req.Seats,
		Price:    req.Price,
		Currency: req.Currency,
		Message:  req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRequestResponse(created))
}

// GetRequest handles GET /v1/requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	req, err := h.requestService.GetRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// CancelRequest handles POST /v1/requests/:id/cancel
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SidePassenger)
	if !ok {
		return
	}

	req, err := h.requestService.CancelRequest(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// RejectRequest handles POST /v1/requests/:id/reject
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SideDriver)
	if !ok {
		return
	}

	var body RejectRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	req, err := h.requestService.RejectRequest(c.Request.Context(), actor.UserID, c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// AcceptRequest handles POST /v1/requests/:id/accept
func (h *RequestHandler) AcceptRequest(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SideDriver)
	if !ok {
		return
	}

	result, err := h.requestService.AcceptRequest(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, AcceptRequestResponse{
		Request: toRequestResponse(result.Request),
		Booking: toBookingResponse(result.Booking),
	})
}

// CloseTripNegotiations handles POST /v1/admin/trips/:id/close-negotiations
func (h *RequestHandler) CloseTripNegotiations(c *gin.Context) {
	var body CloseNegotiationsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "trip canceled"
	}

	closed, err := h.requestService.CloseTripNegotiations(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"trip_id": c.Param("id"), "closed": closed})
}

// ListMyRequests handles GET /v1/me/requests
func (h *RequestHandler) ListMyRequests(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SidePassenger)
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.requestService.ListMyRequests(c.Request.Context(), actor.UserID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toListResponse(page, toRequestResponse))
}

// ListDriverRequests handles GET /v1/driver/requests
func (h *RequestHandler) ListDriverRequests(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SideDriver)
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.requestService.ListDriverRequests(c.Request.Context(), actor.UserID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toListResponse(page, toRequestResponse))
}

// GetMyRequest handles GET /v1/trips/:id/requests/me
func (h *RequestHandler) GetMyRequest(c *gin.Context) {
	actor, ok := sideFrom(c, domain.SidePassenger)
	if !ok {
		return
	}

	req, err := h.requestService.GetMyRequest(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// sideFrom resolves the caller and requires it to act as side.
func sideFrom(c *gin.Context, side domain.Side) (domain.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		return actor, false
	}
	if actor.Side != side {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the " + string(side) + " can do this"})
		return actor, false
	}
	return actor, true
}
