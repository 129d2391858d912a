package report

import (
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is the number of rows per page when none is requested
	DefaultPageSize = 10
	// MaxPageSize bounds client-requested page sizes
	MaxPageSize = 100
)

// Page is one page of a table
type Page struct {
	Number      int      `json:"page"`
	Size        int      `json:"page_size"`
	NumPages    int      `json:"num_pages"`
	Total       int      `json:"total_rows"`
	HasNext     bool     `json:"has_next"`
	HasPrevious bool     `json:"has_previous"`
	Columns     []Column `json:"columns"`
	Rows        []Row    `json:"rows"`
}

// Paginate returns the requested page. A page that is not a number yields the first
// page; a number outside 1..NumPages yields the last page. An empty table has one empty page.
func Paginate(t *Table, page string, size int) *Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	total := len(t.Rows)
	numPages := (total + size - 1) / size
	if numPages == 0 {
		numPages = 1
	}

	n, err := strconv.Atoi(strings.TrimSpace(page))
	switch {
	case err != nil:
		n = 1
	case n < 1 || n > numPages:
		n = numPages
	}

	start := (n - 1) * size
	end := start + size
	if end > total {
		end = total
	}

	return &Page{
		Number:      n,
		Size:        size,
		NumPages:    numPages,
		Total:       total,
		HasNext:     n < numPages,
		HasPrevious: n > 1,
		Columns:     t.Columns,
		Rows:        t.Rows[start:end],
	}
}

// PageSize parses a requested page size, falling back to def
func PageSize(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
