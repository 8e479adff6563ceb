package handler

import (
	"github.com/gin-gonic/gin"

	"carpool/internal/service"
)

// ListParams are the query parameters accepted by listing endpoints.
type ListParams struct {
	TripID   string `form:"trip_id"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ListResponse is one page of a listing.
type ListResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// listQuery binds the listing parameters or answers 400.
func listQuery(c *gin.Context) (service.ListQuery, bool) {
	var p ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		badRequest(c, "invalid query parameters")
		return service.ListQuery{}, false
	}
	return service.ListQuery{
		TripID:   p.TripID,
		Status:   p.Status,
		Page:     p.Page,
		PageSize: p.PageSize,
	}, true
}

func toListResponse[T, R any](page *service.Page[T], convert func(T) R) ListResponse[R] {
	items := make([]R, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return ListResponse[R]{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}
