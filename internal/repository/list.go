package repository

// ListFilter narrows and pages a listing. Empty fields match everything;
// Limit <= 0 returns every match.
type ListFilter struct {
	TripID string
	Status string
	Limit  int
	Offset int
}
