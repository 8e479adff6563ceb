package service

import (
	"fmt"
	"slices"
	"strings"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Page sizes for listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	requestStatuses = []string{
		string(domain.RequestStatusPending),
		string(domain.RequestStatusAccepted),
		string(domain.RequestStatusRejected),
		string(domain.RequestStatusCanceled),
	}
	bookingStatuses = []string{
		string(domain.BookingStatusConfirmed),
		string(domain.BookingStatusPaid),
		string(domain.BookingStatusCompleted),
		string(domain.BookingStatusCanceled),
	}
)

// ListQuery selects a page of a listing. Page is 1-based; zero values pick
// the first page of DefaultPageSize items.
type ListQuery struct {
	TripID   string
	Status   string
	Page     int
	PageSize int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

func (q *ListQuery) normalize() error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidListQuery)
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidListQuery, MaxPageSize)
	}
	return nil
}

// filter validates q against the statuses of the listed entity and turns it
// into a repository filter. Status matching is case-insensitive.
func (q *ListQuery) filter(statuses []string) (repository.ListFilter, error) {
	if err := q.normalize(); err != nil {
		return repository.ListFilter{}, err
	}

	status := strings.ToUpper(strings.TrimSpace(q.Status))
	if status != "" && !slices.Contains(statuses, status) {
		return repository.ListFilter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidListQuery, q.Status)
	}
	q.Status = status

	return repository.ListFilter{
		TripID: strings.TrimSpace(q.TripID),
		Status: status,
		Limit:  q.PageSize,
		Offset: (q.Page - 1) * q.PageSize,
	}, nil
}

func newPage[T any](items []T, total int, q ListQuery) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}
}
