package service

import (
	"errors"

	"carpool/internal/repository"
)

// Validation errors. These are returned before any lock is taken.
var (
	// ErrInvalidRequestID is returned when request ID is empty.
	ErrInvalidRequestID = errors.New("invalid request id")

	// ErrInvalidOfferID is returned when offer ID is empty.
	ErrInvalidOfferID = errors.New("invalid offer id")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidListQuery is returned for a malformed listing filter or page.
	ErrInvalidListQuery = errors.New("invalid list query")

	// ErrInvalidActor is returned when the caller identity or side is missing.
	ErrInvalidActor = errors.New("invalid caller identity or role")

	// ErrInvalidPrice is returned when a price is not positive.
	ErrInvalidPrice = errors.New("price must be greater than zero")

	// ErrInvalidSeats is returned when the requested seat count is not positive.
	ErrInvalidSeats = errors.New("seats must be greater than zero")

	// ErrInvalidCurrency is returned when the currency code is missing.
	ErrInvalidCurrency = errors.New("invalid currency")
)

// Authorization errors.
var (
	// ErrNotParticipant is returned when the caller is neither the request's
	// passenger nor the driver of its trip.
	ErrNotParticipant = errors.New("caller is not a participant of this request")

	// ErrNotCounterparty is returned when the proposer's side tries to
	// accept or reject its own offer.
	ErrNotCounterparty = errors.New("only the counterparty can respond to this offer")

	// ErrNotProposer is returned when someone other than the proposer tries
	// to cancel an offer.
	ErrNotProposer = errors.New("only the proposer can cancel this offer")

	// ErrSelfRequest is returned when a driver requests a seat on their own trip.
	ErrSelfRequest = errors.New("driver cannot request a seat on their own trip")
)

// Business-rule errors. Retrying without new information fails the same way.
var (
	// ErrSessionNotActive is returned when the request is no longer pending
	// or its trip is not bookable.
	ErrSessionNotActive = errors.New("negotiation is not active")

	// ErrNegotiationFinished is returned when the session reached a terminal state.
	ErrNegotiationFinished = errors.New("negotiation already finished")

	// ErrWrongTurn is returned when the caller's side is not the one to move.
	ErrWrongTurn = errors.New("not your turn")

	// ErrOwnOfferPending is returned when the caller already has an active
	// offer awaiting a response.
	ErrOwnOfferPending = errors.New("wait for the counterparty to respond or cancel your active offer")

	// ErrBudgetExhausted is returned when the caller's side has no moves left.
	// The session is expired as part of the failed attempt.
	ErrBudgetExhausted = errors.New("move budget exhausted")

	// ErrOfferNotActive is returned when the offer was already resolved.
	ErrOfferNotActive = errors.New("offer is not active")

	// ErrOfferNotCurrent is returned when the offer is not the session's latest offer.
	ErrOfferNotCurrent = errors.New("offer is not the current offer of the negotiation")

	// ErrInsufficientCapacity is returned when the trip has fewer seats left
	// than the request needs, or stopped being bookable.
	ErrInsufficientCapacity = errors.New("insufficient seat capacity")

	// ErrRequestNotPending is returned when a request action needs a pending request.
	ErrRequestNotPending = errors.New("request is not pending")

	// ErrTripNotBookable is returned when a trip does not accept new requests.
	ErrTripNotBookable = errors.New("trip is not accepting requests")

	// ErrDuplicateRequest is returned when the passenger already holds a live
	// request for the trip.
	ErrDuplicateRequest = errors.New("request already exists for this trip")

	// ErrTripDeparted is returned when a booking can no longer be canceled
	// because its trip is underway or over.
	ErrTripDeparted = errors.New("trip has already departed")

	// ErrBookingNotActive is returned when a booking no longer holds seats.
	ErrBookingNotActive = errors.New("booking is not active")

	// ErrEventNotFailed is returned when requeueing an event that is not failed.
	ErrEventNotFailed = errors.New("outbox event is not in failed state")

	// ErrDeliveryInFlight is returned when another process holds the
	// delivery of a message. The dispatcher retries it later.
	ErrDeliveryInFlight = errors.New("delivery already in flight")
)

// Concurrency errors are the repository sentinels; callers may reload and retry.
var (
	// ErrStaleVersion is returned when the session changed under the caller.
	ErrStaleVersion = repository.ErrStaleVersion

	// ErrLockTimeout is returned when the request lock could not be taken in time.
	ErrLockTimeout = repository.ErrLockTimeout
)

// IsRetryable reports whether err is a concurrency failure the caller may
// retry after reloading state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleVersion) || errors.Is(err, ErrLockTimeout)
}
