package feed

import (
	"strconv"

	"microblog/internal/models"
)

// PageSize is the fixed window for every feed listing.
const PageSize = 10

type Page struct {
	Items      []models.Post
	Number     int
	TotalPages int
	TotalItems int
}

func (p Page) HasNext() bool { return p.Number < p.TotalPages }
func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) Next() int     { return p.Number + 1 }
func (p Page) Prev() int     { return p.Number - 1 }

// PageCount reports how many pages a listing of total items spans.
// An empty listing still has one (empty) page.
func PageCount(total int) int {
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}

// ClampPage folds out-of-range requests onto the nearest valid page:
// zero or negative to the first page, past-the-end to the last.
func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// ParsePage reads a ?page= query value. Anything unparsable means page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
