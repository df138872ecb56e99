package domain

// PageMeta is the pagination metadata reported by list endpoints.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// SyntheticPageMeta is the metadata reported for a fully drained collection:
// everything fits on a single synthetic page.
func SyntheticPageMeta(total int) PageMeta {
	return PageMeta{CurrentPage: 1, LastPage: 1, PerPage: total, Total: total}
}
