package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize is the window requested per page from the connections listing.
const DefaultPageSize = 40

// Cursor is the position of the next page to request.
// It is never persisted; every run starts at offset 0.
type Cursor struct {
	// Start is the zero-based offset of the first item in the page.
	Start int

	// PageSize is the number of items requested per page.
	PageSize int
}

// NewCursor returns a cursor at offset 0. Non-positive sizes fall back to DefaultPageSize.
func NewCursor(pageSize int) Cursor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Cursor{Start: 0, PageSize: pageSize}
}

// Next returns the cursor advanced by one page.
func (c Cursor) Next() Cursor {
	return Cursor{Start: c.Start + c.PageSize, PageSize: c.PageSize}
}

// End returns the exclusive upper bound of the window.
func (c Cursor) End() int {
	return c.Start + c.PageSize
}

// Page returns the zero-based page number of the cursor.
func (c Cursor) Page() int {
	if c.PageSize <= 0 {
		return 0
	}
	return c.Start / c.PageSize
}

// Apply sets the count and start query parameters on q.
func (c Cursor) Apply(q url.Values) {
	q.Set("count", strconv.Itoa(c.PageSize))
	q.Set("start", strconv.Itoa(c.Start))
}

// String implements fmt.Stringer.
func (c Cursor) String() string {
	return fmt.Sprintf("%d..%d", c.Start, c.End())
}
