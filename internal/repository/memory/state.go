package memory

import (
	"maps"
	"slices"

	"carpool/internal/domain"
)

type state struct {
	trips       map[string]domain.Trip
	requests    map[string]domain.TripRequest
	sessions    map[string]domain.NegotiationSession
	offers      map[string]domain.Offer
	bookings    map[string]domain.Booking
	outbox      map[string]domain.OutboxEvent
	outboxOrder []string
	outboxKeys  map[string]string
}

func newState() *state {
	return &state{
		trips:      make(map[string]domain.Trip),
		requests:   make(map[string]domain.TripRequest),
		sessions:   make(map[string]domain.NegotiationSession),
		offers:     make(map[string]domain.Offer),
		bookings:   make(map[string]domain.Booking),
		outbox:     make(map[string]domain.OutboxEvent),
		outboxKeys: make(map[string]string),
	}
}

// clone copies every table. Entities are stored by value, so copying the
// maps is enough; outbox payloads are never mutated in place.
func (s *state) clone() *state {
	return &state{
		trips:       maps.Clone(s.trips),
		requests:    maps.Clone(s.requests),
		sessions:    maps.Clone(s.sessions),
		offers:      maps.Clone(s.offers),
		bookings:    maps.Clone(s.bookings),
		outbox:      maps.Clone(s.outbox),
		outboxOrder: slices.Clone(s.outboxOrder),
		outboxKeys:  maps.Clone(s.outboxKeys),
	}
}
