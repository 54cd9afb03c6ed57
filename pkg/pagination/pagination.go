package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. The FHIR names
// _count and _offset take precedence over limit and offset.
func FromContext(c echo.Context) Params {
	return Params{
		Limit:  clampLimit(firstPositive(c, "_count", "limit")),
		Offset: firstPositive(c, "_offset", "offset"),
	}
}

func firstPositive(c echo.Context, names ...string) int {
	for _, name := range names {
		if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// Response is one page of a listing.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

// Link is a navigation link of a listing.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Window returns the [start, end) bounds of the page within total items.
func (p Params) Window(total int) (start, end int) {
	start = min(max(p.Offset, 0), total)
	end = min(start+p.Limit, total)
	return start, end
}

// Page slices items to the window selected by p and wraps the copy with
// self, next and previous links relative to basePath.
func Page[T any](items []T, p Params, basePath string) *Response {
	total := len(items)
	start, end := p.Window(total)
	page := make([]T, end-start)
	copy(page, items[start:end])

	link := func(rel string, offset int) Link {
		return Link{Relation: rel, URL: fmt.Sprintf("%s?offset=%d&limit=%d", basePath, offset, p.Limit)}
	}
	links := []Link{link("self", p.Offset)}
	if end < total {
		links = append(links, link("next", end))
	}
	if p.Offset > 0 {
		links = append(links, link("previous", max(p.Offset-p.Limit, 0)))
	}

	return &Response{
		Data:    page,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: end < total,
		Links:   links,
	}
}
