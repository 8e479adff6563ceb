package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// NegotiationHandler handles HTTP requests for offers and negotiation sessions.
type NegotiationHandler struct {
	engine *service.NegotiationEngine
}

// NewNegotiationHandler creates a new NegotiationHandler.
func NewNegotiationHandler(engine *service.NegotiationEngine) *NegotiationHandler {
	return &NegotiationHandler{engine: engine}
}

// SubmitOfferRequest is the HTTP request body for proposing a price.
type SubmitOfferRequest struct {
	Price           int64  `json:"price"`
	Message         string `json:"message"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// RespondOfferRequest is the HTTP request body for accepting, rejecting or
// canceling an offer. Reason is only used on rejection.
type RespondOfferRequest struct {
	Reason          string `json:"reason"`
	Note            string `json:"note"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// OfferResponse is the HTTP response for an offer.
type OfferResponse struct {
	ID             string `json:"id"`
	RequestID      string `json:"request_id"`
	Seq            int    `json:"seq"`
	ProposerID     string `json:"proposer_id"`
	ProposerSide   string `json:"proposer_side"`
	Price          int64  `json:"price"`
	Currency       string `json:"currency"`
	Message        string `json:"message,omitempty"`
	Status         string `json:"status"`
	ResponseReason string `json:"response_reason,omitempty"`
	ResponseNote   string `json:"response_note,omitempty"`
	RespondedAt    string `json:"responded_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toOfferResponse(o *domain.Offer) OfferResponse {
	return OfferResponse{
		ID:             o.ID,
		RequestID:      o.RequestID,
		Seq:            o.Seq,
		ProposerID:     o.ProposerID,
		ProposerSide:   string(o.ProposerSide),
		Price:          o.Price,
		Currency:       o.Currency,
		Message:        o.Message,
		Status:         string(o.Status),
		ResponseReason: o.ResponseReason,
		ResponseNote:   o.ResponseNote,
		RespondedAt:    formatTime(o.RespondedAt),
		CreatedAt:      formatTime(o.CreatedAt),
	}
}

// AcceptOfferResponse is the HTTP response for an accepted offer.
type AcceptOfferResponse struct {
	Offer   OfferResponse   `json:"offer"`
	Request RequestResponse `json:"request"`
	Booking BookingResponse `json:"booking"`
}

// NegotiationResponse is the caller's view of a negotiation.
type NegotiationResponse struct {
	RequestID       string            `json:"request_id"`
	TripID          string            `json:"trip_id"`
	State           string            `json:"state"`
	NextTurn        string            `json:"next_turn"` // "" while either side may open
	MaxMovesPerSide int               `json:"max_moves_per_side"`
	Driver          service.SideMoves `json:"driver"`
	Passenger       service.SideMoves `json:"passenger"`
	Mine            service.SideMoves `json:"mine"`
	ActiveOfferID   string            `json:"active_offer_id,omitempty"`
	AcceptedOfferID string            `json:"accepted_offer_id,omitempty"`
	LastOfferID     string            `json:"last_offer_id,omitempty"`
	Version         int64             `json:"version"`
	CanPropose      bool              `json:"can_propose"`
	CanAccept       bool              `json:"can_accept"`
	CanReject       bool              `json:"can_reject"`
	CanCancel       bool              `json:"can_cancel"`
	Offers          []OfferResponse   `json:"offers"`
}

// SubmitOffer handles POST /v1/requests/:id/offers
func (h *NegotiationHandler) SubmitOffer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req SubmitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	offer, err := h.engine.SubmitOffer(c.Request.Context(), actor, service.SubmitOfferRequest{
		RequestID:       c.Param("id"),
		Price:           req.Price,
		Message:         req.Message,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toOfferResponse(offer))
}

// GetNegotiation handles GET /v1/requests/:id/negotiation
func (h *NegotiationHandler) GetNegotiation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	view, err := h.engine.GetNegotiation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := NegotiationResponse{
		RequestID:       view.RequestID,
		TripID:          view.TripID,
		State:           string(view.State),
		NextTurn:        string(view.NextTurn),
		MaxMovesPerSide: view.MaxMovesPerSide,
		Driver:          view.Driver,
		Passenger:       view.Passenger,
		Mine:            view.Mine,
		ActiveOfferID:   view.ActiveOfferID,
		AcceptedOfferID: view.AcceptedOfferID,
		LastOfferID:     view.LastOfferID,
		Version:         view.Version,
		CanPropose:      view.CanPropose,
		CanAccept:       view.CanAccept,
		CanReject:       view.CanReject,
		CanCancel:       view.CanCancel,
		Offers:          make([]OfferResponse, 0, len(view.Offers)),
	}
	for _, o := range view.Offers {
		response.Offers = append(response.Offers, toOfferResponse(o))
	}

	respondJSON(c, http.StatusOK, response)
}

// AcceptOffer handles POST /v1/offers/:id/accept
func (h *NegotiationHandler) AcceptOffer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	req, ok := bindRespond(c)
	if !ok {
		return
	}

	result, err := h.engine.AcceptOffer(c.Request.Context(), actor, service.AcceptOfferRequest{
		OfferID:         c.Param("id"),
		Note:            req.Note,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, AcceptOfferResponse{
		Offer:   toOfferResponse(result.Offer),
		Request: toRequestResponse(result.Request),
		Booking: toBookingResponse(result.Booking),
	})
}

// RejectOffer handles POST /v1/offers/:id/reject
func (h *NegotiationHandler) RejectOffer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	req, ok := bindRespond(c)
	if !ok {
		return
	}

	offer, err := h.engine.RejectOffer(c.Request.Context(), actor, service.RejectOfferRequest{
		OfferID:         c.Param("id"),
		Reason:          req.Reason,
		Note:            req.Note,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOfferResponse(offer))
}

// CancelOffer handles POST /v1/offers/:id/cancel
func (h *NegotiationHandler) CancelOffer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	req, ok := bindRespond(c)
	if !ok {
		return
	}

	offer, err := h.engine.CancelOffer(c.Request.Context(), actor, service.CancelOfferRequest{
		OfferID:         c.Param("id"),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOfferResponse(offer))
}

// bindRespond reads an optional body; an empty body is allowed.
func bindRespond(c *gin.Context) (RespondOfferRequest, bool) {
	var req RespondOfferRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return req, false
	}
	return req, true
}
