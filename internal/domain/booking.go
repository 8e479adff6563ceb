package domain

import "time"

// BookingStatus represents the lifecycle of a booking.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusPaid      BookingStatus = "PAID"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCanceled  BookingStatus = "CANCELED"
)

// Booking is the durable reservation created from an accepted negotiation.
// There is at most one booking per trip request.
type Booking struct {
	ID           string
	TripID       string
	RequestID    string
	PassengerID  string
	Seats        int
	Price        int64
	Currency     string
	Status       BookingStatus
	CancelReason string
	CanceledAt   time.Time
	CreatedAt    time.Time

	// Set on cancellation, in minor units: the part of Price kept as a fee
	// and the part returned to the passenger.
	CancellationFee int64
	RefundAmount    int64
}

// BookingCancellation is what a cancellation records on a booking.
type BookingCancellation struct {
	Reason string
	Fee    int64
	Refund int64
	At     time.Time
}

// CancellationFee returns percent of price rounded half up, with percent
// clamped to [0, 100].
func CancellationFee(price int64, percent int) int64 {
	percent = min(max(percent, 0), 100)
	return (price*int64(percent) + 50) / 100
}

// Cancellation prices a cancellation of b. Passengers pay feePercent of the
// price; a driver canceling refunds the passenger in full.
func (b *Booking) Cancellation(by Side, feePercent int, reason string, at time.Time) BookingCancellation {
	var fee int64
	if by == SidePassenger {
		fee = CancellationFee(b.Price, feePercent)
	}
	return BookingCancellation{Reason: reason, Fee: fee, Refund: b.Price - fee, At: at}
}

// HoldsSeats reports whether the booking still counts against trip capacity.
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusConfirmed || b.Status == BookingStatusPaid
}
