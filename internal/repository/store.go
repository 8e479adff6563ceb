package repository

import "context"

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Trips() TripRepository
	Requests() RequestRepository
	Sessions() SessionRepository
	Offers() OfferRepository
	Bookings() BookingRepository
	Outbox() OutboxRepository
}

// Store gives access to the repositories outside of a transaction and runs
// functions inside one. WithinTx commits when fn returns nil and rolls back
// otherwise.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
