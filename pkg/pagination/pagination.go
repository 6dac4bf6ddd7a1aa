// Package pagination reads list windows from query strings and shapes the
// paginated response payload.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window. The zero value is not valid; use
// FromContext or fill both fields.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= with either ?offset= or a 1-based ?page=. When
// both are given page wins. Out of range values are clamped, never rejected.
func FromContext(c echo.Context) Params {
	limit := clamp(atoi(c.QueryParam("limit")), 1, MaxLimit, DefaultLimit)

	offset := atoi(c.QueryParam("offset"))
	if page := atoi(c.QueryParam("page")); page > 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// clamp bounds n to [lo, hi]; values below lo fall back to def.
func clamp(n, lo, hi, def int) int {
	switch {
	case n < lo:
		return def
	case n > hi:
		return hi
	}
	return n
}

// Page is the data payload of a paginated list response.
type Page struct {
	Items   interface{} `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Page    int         `json:"page"`
	HasMore bool        `json:"hasMore"`
}

func NewPage(items interface{}, total int, p Params) Page {
	return Page{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Page:    p.Offset/p.Limit + 1,
		HasMore: p.Offset+p.Limit < total,
	}
}
