package domain

// PaginationParams holds offset-based pagination parameters for list queries.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset returns the item offset for the current page (0-based).
func (p PaginationParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Paginate returns the page of items described by p and the total item count.
// A non-positive page size returns everything.
func Paginate[T any](items []T, p PaginationParams) ([]T, int) {
	total := len(items)
	if p.PageSize <= 0 {
		return items, total
	}
	start := min(p.Offset(), total)
	end := min(start+p.PageSize, total)
	return items[start:end], total
}
