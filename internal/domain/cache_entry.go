package domain

// CacheEntry is the persisted snapshot of a complete subcategory collection.
// Timestamp is the epoch-millis time at which the last page of the fetch completed.
type CacheEntry struct {
	Data      []Subcategory `json:"data"`
	Timestamp int64         `json:"timestamp"`
}
