package model

import "fmt"

// SortMode selects the ordering of listing queries without a name filter.
type SortMode string

const (
	SortRecent  SortMode = "recent"
	SortName    SortMode = "name"
	SortBenefit SortMode = "benefit"
)

// ParseSortMode maps a query parameter to a SortMode. Empty means recent.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case "", SortRecent:
		return SortRecent, nil
	case SortName, SortBenefit:
		return SortMode(s), nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// ListingFilter narrows a listing query. Empty fields do not filter.
type ListingFilter struct {
	MinecraftID string
	Seller      string
	Name        string
	Sort        SortMode
	// Threshold is the minimum name similarity when Name is set.
	Threshold float64
}

// Note is a free-text description of a barrel's contents.
type Note struct {
	ID         int64  `json:"id"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Z          int    `json:"z"`
	Items      string `json:"items"`
	RecordDate string `json:"record_date"`
}

// Key returns the per-day key of the note.
func (n *Note) Key() Key {
	return Key{Day: n.RecordDate, X: n.X, Y: n.Y, Z: n.Z}
}

// Group is all records sharing one coordinate triple, represented by the
// first record under the active ordering.
type Group struct {
	Record
	Count int    `json:"count"`
	Notes []Note `json:"barrel_items"`
}

// Page is one page of aggregated groups.
type Page struct {
	Groups   []Group `json:"groups"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Total    int     `json:"total"`
}

// History is every record stored for a coordinate triple, newest first.
type History struct {
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}
