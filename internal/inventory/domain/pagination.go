package domain

// Pagination is a 1-based page request. A zero PerPage means no limit.
type Pagination struct {
	Page    int
	PerPage int
}

// Limit returns the row limit, zero when unbounded.
func (p Pagination) Limit() int {
	if p.PerPage < 0 {
		return 0
	}
	return p.PerPage
}

// Offset returns the number of rows to skip.
func (p Pagination) Offset() int {
	if p.PerPage <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Window slices n items according to p and returns the [start, end) bounds.
func (p Pagination) Window(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := n
	if limit := p.Limit(); limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}
