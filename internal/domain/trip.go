package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusDraft     TripStatus = "DRAFT"
	TripStatusPublished TripStatus = "PUBLISHED"
	TripStatusStarted   TripStatus = "STARTED"
	TripStatusCompleted TripStatus = "COMPLETED"
	TripStatusCanceled  TripStatus = "CANCELED"
)

// Trip is a scheduled trip offered by a driver. SeatsAvailable is the seat
// ledger: it only moves through conditional reserve/release updates.
type Trip struct {
	ID             string
	DriverID       string
	Status         TripStatus
	SeatsTotal     int
	SeatsAvailable int
	DepartureAt    time.Time
	CreatedAt      time.Time
}

// IsBookable reports whether new seats may be reserved on the trip.
func (t *Trip) IsBookable() bool {
	return t.Status == TripStatusPublished
}
