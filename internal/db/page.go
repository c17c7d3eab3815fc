package db

import (
	"math"

	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

func (p Page) findOptions() *options.FindOptions {
	p = p.normalize()
	return options.Find().SetLimit(int64(p.Limit)).SetSkip(int64(p.Limit * (p.Page - 1)))
}

// Pagination describes a page of results in API responses.
type Pagination struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"pageSize"`
	TotalRecords int64 `json:"totalRecords"`
	TotalPages   int   `json:"totalPages"`
	HasNextPage  bool  `json:"hasNextPage"`
	HasPrevPage  bool  `json:"hasPrevPage"`
}

func NewPagination(p Page, total int64) Pagination {
	p = p.normalize()
	pages := int(math.Ceil(float64(total) / float64(p.Limit)))
	return Pagination{
		Page:         p.Page,
		PageSize:     p.Limit,
		TotalRecords: total,
		TotalPages:   pages,
		HasNextPage:  p.Page < pages,
		HasPrevPage:  p.Page > 1,
	}
}
