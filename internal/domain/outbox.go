package domain

import "time"

// OutboxStatus represents the delivery lifecycle of an outbox event.
type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusDone       OutboxStatus = "DONE"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// Event topics written to the outbox.
const (
	TopicOfferCreated       = "offer.created"
	TopicOfferAccepted      = "offer.accepted"
	TopicOfferRejected      = "offer.rejected"
	TopicOfferCanceled      = "offer.canceled"
	TopicRequestCreated     = "request.created"
	TopicRequestAccepted    = "request.accepted"
	TopicRequestRejected    = "request.rejected"
	TopicRequestCanceled    = "request.canceled"
	TopicNegotiationExpired = "negotiation.expired"
	TopicBookingCanceled    = "booking.canceled"
)

// Aggregate types referenced by outbox events.
const (
	AggregateOffer   = "offer"
	AggregateRequest = "trip_request"
	AggregateBooking = "booking"
)

// OutboxEvent is a durable record of a domain change awaiting delivery.
type OutboxEvent struct {
	ID             string
	Topic          string
	AggregateType  string
	AggregateID    string
	Payload        []byte
	Status         OutboxStatus
	Attempts       int
	NextRetryAt    time.Time // zero means deliver as soon as possible
	LockedBy       string
	LockedAt       time.Time
	LastError      string
	IdempotencyKey string
	CreatedAt      time.Time
	ProcessedAt    time.Time
}
