package model

// Page is one slice of the public listing, ordered newest first.
type Page struct {
	Items      []Listing
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Page < p.TotalPages }
