package storage

import "context"

// Store is the key-value capability backing the persisted cache slot.
// Get reports found=false for an absent key; err is reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
