package service

import "carpool/internal/domain"

// Event payloads carry both participants so consumers can act without
// further lookups.

// OfferEvent is the payload of offer.* events.
type OfferEvent struct {
	OfferID      string      `json:"offer_id"`
	RequestID    string      `json:"request_id"`
	TripID       string      `json:"trip_id"`
	PassengerID  string      `json:"passenger_id"`
	DriverID     string      `json:"driver_id"`
	ProposerID   string      `json:"proposer_id"`
	ProposerSide domain.Side `json:"proposer_side"`
	Seq          int         `json:"seq"`
	Price        int64       `json:"price"`
	Currency     string      `json:"currency"`
	ActorID      string      `json:"actor_id"`
	ActorSide    domain.Side `json:"actor_side"`
	AttemptNo    int         `json:"attempt_no,omitempty"`
	BookingID    string      `json:"booking_id,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// RequestEvent is the payload of request.* events.
type RequestEvent struct {
	RequestID   string `json:"request_id"`
	TripID      string `json:"trip_id"`
	PassengerID string `json:"passenger_id"`
	DriverID    string `json:"driver_id"`
	Seats       int    `json:"seats"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	BookingID   string `json:"booking_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// NegotiationExpiredEvent is the payload of negotiation.expired.
type NegotiationExpiredEvent struct {
	RequestID     string      `json:"request_id"`
	TripID        string      `json:"trip_id"`
	PassengerID   string      `json:"passenger_id"`
	DriverID      string      `json:"driver_id"`
	ExhaustedSide domain.Side `json:"exhausted_side"`
}

// BookingEvent is the payload of booking.* events.
type BookingEvent struct {
	BookingID   string      `json:"booking_id"`
	RequestID   string      `json:"request_id"`
	TripID      string      `json:"trip_id"`
	PassengerID string      `json:"passenger_id"`
	DriverID    string      `json:"driver_id"`
	Seats       int         `json:"seats"`
	Price       int64       `json:"price"`
	Currency    string      `json:"currency"`
	CanceledBy  domain.Side `json:"canceled_by,omitempty"`
	Reason      string      `json:"reason,omitempty"`

	CancellationFee int64 `json:"cancellation_fee"`
	RefundAmount    int64 `json:"refund_amount"`
}

func newOfferEvent(st *negotiationState, offer *domain.Offer, actor domain.Actor) OfferEvent {
	return OfferEvent{
		OfferID:      offer.ID,
		RequestID:    offer.RequestID,
		TripID:       st.trip.ID,
		PassengerID:  st.req.PassengerID,
		DriverID:     st.trip.DriverID,
		ProposerID:   offer.ProposerID,
		ProposerSide: offer.ProposerSide,
		Seq:          offer.Seq,
		Price:        offer.Price,
		Currency:     offer.Currency,
		ActorID:      actor.UserID,
		ActorSide:    actor.Side,
	}
}

func (p OfferEvent) spec(topic string) EventSpec {
	return EventSpec{
		Topic:          topic,
		AggregateType:  domain.AggregateOffer,
		AggregateID:    p.OfferID,
		Payload:        p,
		IdempotencyKey: topic + ":" + p.OfferID,
	}
}

func newRequestEvent(req *domain.TripRequest, trip *domain.Trip) RequestEvent {
	return RequestEvent{
		RequestID:   req.ID,
		TripID:      req.TripID,
		PassengerID: req.PassengerID,
		DriverID:    trip.DriverID,
		Seats:       req.Seats,
		Price:       req.Price,
		Currency:    req.Currency,
		Reason:      req.RejectionReason,
	}
}

func (p RequestEvent) spec(topic string) EventSpec {
	return EventSpec{
		Topic:          topic,
		AggregateType:  domain.AggregateRequest,
		AggregateID:    p.RequestID,
		Payload:        p,
		IdempotencyKey: topic + ":" + p.RequestID,
	}
}

func (p NegotiationExpiredEvent) spec() EventSpec {
	return EventSpec{
		Topic:          domain.TopicNegotiationExpired,
		AggregateType:  domain.AggregateRequest,
		AggregateID:    p.RequestID,
		Payload:        p,
		IdempotencyKey: domain.TopicNegotiationExpired + ":" + p.RequestID,
	}
}

func (p BookingEvent) spec(topic string) EventSpec {
	return EventSpec{
		Topic:          topic,
		AggregateType:  domain.AggregateBooking,
		AggregateID:    p.BookingID,
		Payload:        p,
		IdempotencyKey: topic + ":" + p.BookingID,
	}
}
