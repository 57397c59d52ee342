package domain

// Subcategory is a taxonomy entry used to tag content across category pages
type Subcategory struct {
	ID       int64  `json:"id"`                 // Stable identifier, unique across fetches
	Name     string `json:"name"`               // Display name like "Manuscripts"
	Slug     string `json:"slug"`               // URL-safe slug, unique within the collection
	Category *int64 `json:"category,omitempty"` // Parent category ID, absent for top-level entries
}

// SubcategoryPage is one page of the cursor-paginated collection endpoint
type SubcategoryPage struct {
	Results []Subcategory `json:"results"`
	Next    *string       `json:"next"` // Absolute URL of the next page, null on the last page
}

// HasNext reports whether the server pointed to another page
func (p *SubcategoryPage) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}
