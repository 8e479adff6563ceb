package redis

import "carpool/internal/service"

// Ensure concrete types implement the service interfaces.
var (
	_ service.Publisher = (*StreamPublisher)(nil)
	_ service.Deduper   = (*DedupStore)(nil)
)
