package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// OutboxHandler serves the operator endpoints of the outbox.
type OutboxHandler struct {
	admin *service.OutboxAdmin
}

// NewOutboxHandler creates a new OutboxHandler.
func NewOutboxHandler(admin *service.OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{admin: admin}
}

// OutboxEventResponse is the HTTP response for an outbox event.
type OutboxEventResponse struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	NextRetryAt    string          `json:"next_retry_at,omitempty"`
	CreatedAt      string          `json:"created_at"`
	ProcessedAt    string          `json:"processed_at,omitempty"`
}

func toOutboxEventResponse(e *domain.OutboxEvent) OutboxEventResponse {
	return OutboxEventResponse{
		ID:             e.ID,
		Topic:          e.Topic,
		AggregateType:  e.AggregateType,
		AggregateID:    e.AggregateID,
		Status:         string(e.Status),
		Attempts:       e.Attempts,
		LastError:      e.LastError,
		IdempotencyKey: e.IdempotencyKey,
		Payload:        json.RawMessage(e.Payload),
		NextRetryAt:    formatTime(e.NextRetryAt),
		CreatedAt:      formatTime(e.CreatedAt),
		ProcessedAt:    formatTime(e.ProcessedAt),
	}
}

// ListFailed handles GET /v1/admin/outbox/failed
func (h *OutboxHandler) ListFailed(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be a number")
			return
		}
		limit = n
	}

	events, err := h.admin.ListFailed(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]OutboxEventResponse, 0, len(events))
	for _, e := range events {
		response = append(response, toOutboxEventResponse(e))
	}

	respondJSON(c, http.StatusOK, response)
}

// Requeue handles POST /v1/admin/outbox/:id/requeue
func (h *OutboxHandler) Requeue(c *gin.Context) {
	event, err := h.admin.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOutboxEventResponse(event))
}
