package domain

import "time"

// RequestStatus represents the lifecycle of a trip request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusAccepted RequestStatus = "ACCEPTED"
	RequestStatusRejected RequestStatus = "REJECTED"
	RequestStatusCanceled RequestStatus = "CANCELED"
)

// TripRequest is a passenger's ask to join a trip. It is the lock key for the
// whole negotiation: the request row, its session and its offers move together.
type TripRequest struct {
	ID              string
	TripID          string
	PassengerID     string
	Seats           int
	Price           int64 // minor currency units
	Currency        string
	Message         string
	Status          RequestStatus
	RejectionReason string
	CreatedAt       time.Time
	RespondedAt     time.Time
}

// IsPending reports whether the request can still be negotiated.
func (r *TripRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}
