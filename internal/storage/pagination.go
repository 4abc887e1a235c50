package storage

// Page is one slice of a cursor-paginated listing, ordered by id descending.
// NextCursor is the id of the last returned item and is nil on the final page.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *uint64 `json:"next_cursor"`
	HasNext    bool    `json:"has_next"`
}

// newPage trims a limit+1 probe result down to the page size and derives the
// cursor for the next request.
func newPage[T any](rows []T, limit int, id func(T) uint64) *Page[T] {
	page := &Page[T]{}

	if len(rows) > limit {
		page.HasNext = true
		rows = rows[:limit]
	}
	page.Items = rows

	if page.HasNext && len(rows) > 0 {
		last := id(rows[len(rows)-1])
		page.NextCursor = &last
	}

	return page
}
