package domain

import "time"

// OfferStatus represents the lifecycle of an offer.
type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "ACTIVE"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusRejected OfferStatus = "REJECTED"
	OfferStatusCanceled OfferStatus = "CANCELED"
)

// Reasons recorded on offers closed by the engine rather than by a caller.
const (
	ReasonCounterOffer     = "superseded by counter-offer"
	ReasonAnotherAccepted  = "another offer accepted"
	ReasonNegotiationEnded = "negotiation closed"
)

// Offer is one proposed price within a negotiation. Seq is strictly
// increasing per request.
type Offer struct {
	ID             string
	RequestID      string
	Seq            int
	ProposerID     string
	ProposerSide   Side
	Price          int64
	Currency       string
	Message        string
	Status         OfferStatus
	ResponseReason string
	ResponseNote   string
	RespondedAt    time.Time
	CreatedAt      time.Time
}

// IsActive reports whether the offer is still awaiting a response.
func (o *Offer) IsActive() bool {
	return o.Status == OfferStatusActive
}
