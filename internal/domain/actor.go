package domain

// Side identifies which party of a trip request is acting.
type Side string

const (
	SideDriver    Side = "driver"
	SidePassenger Side = "passenger"
)

// ParseSide converts a caller role into a Side. The second return value is
// false for anything other than driver or passenger.
func ParseSide(role string) (Side, bool) {
	switch Side(role) {
	case SideDriver:
		return SideDriver, true
	case SidePassenger:
		return SidePassenger, true
	default:
		return "", false
	}
}

// Valid reports whether s is one of the two negotiating sides.
func (s Side) Valid() bool {
	return s == SideDriver || s == SidePassenger
}

// Opposite returns the other side of the negotiation.
func (s Side) Opposite() Side {
	if s == SideDriver {
		return SidePassenger
	}
	return SideDriver
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	UserID string
	Side   Side
}
