package domain

type Source string

func (s Source) String() string {
	return string(s)
}

const (
	SourceNone   Source = ""       // Still loading
	SourceCache  Source = "cache"  // Adopted a fresh cached snapshot
	SourceFetch  Source = "fetch"  // Completed a paginated fetch
	SourceFailed Source = "failed" // Fetch failed or was cancelled
)

// State is the read-only view exposed to consumers of the taxonomy provider
type State struct {
	Items     []Subcategory
	IsLoading bool
	Source    Source
	Err       error
}

// Clone returns a copy that shares no memory with the receiver
func (s State) Clone() State {
	items := make([]Subcategory, len(s.Items))
	for i, item := range s.Items {
		if item.Category != nil {
			parent := *item.Category
			item.Category = &parent
		}
		items[i] = item
	}
	s.Items = items
	return s
}
