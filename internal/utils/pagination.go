package utils

import (
	"github.com/gofiber/fiber/v2"
)

const (
	// DefaultPageSize applies when limit is missing or not positive.
	DefaultPageSize = 20
	// MaxPageSize caps the limit query parameter.
	MaxPageSize = 100
)

// Pagination is a resolved page window.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads the page and limit query params, clamping both into
// range.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := c.QueryInt("page", 1)
	if page <= 0 {
		page = 1
	}
	limit := c.QueryInt("limit", DefaultPageSize)
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta describes the window alongside the total row count.
func (p Pagination) Meta(total int64) fiber.Map {
	pages := int64(0)
	if total > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return fiber.Map{
		"current_page":   p.Page,
		"items_per_page": p.Limit,
		"total_items":    total,
		"total_pages":    pages,
	}
}
