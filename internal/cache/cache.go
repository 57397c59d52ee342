package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"heritage/taxonomy/internal/domain"
	"heritage/taxonomy/internal/metrics"
	"heritage/taxonomy/internal/storage"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

var ErrCorruptEntry = errors.New("corrupt cache entry")

// SnapshotCache persists complete subcategory snapshots in a single slot and
// treats them as valid for ttl after the fetch that produced them.
type SnapshotCache struct {
	store   storage.Store
	key     string
	ttl     time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics
}

type Option func(*SnapshotCache)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clock.Clock) Option {
	return func(s *SnapshotCache) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SnapshotCache) {
		s.metrics = m
	}
}

func New(store storage.Store, key string, ttl time.Duration, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		store: store,
		key:   key,
		ttl:   ttl,
		clock: clock.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Load returns the cached items when the slot holds a fresh snapshot.
// Absent, corrupt, expired and unreadable slots all report false.
func (c *SnapshotCache) Load(ctx context.Context) ([]domain.Subcategory, bool) {
	raw, found, err := c.store.Get(ctx, c.key)
	if err != nil {
		log.Warnf("⚠️ Failed to read cache slot %s: %v", c.key, err)
		c.metrics.IncrementCacheMiss("error")
		return nil, false
	}

	if !found {
		log.Debugf("Cache slot %s is empty", c.key)
		c.metrics.IncrementCacheMiss("absent")
		return nil, false
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		log.Warnf("⚠️ Ignoring cache slot %s: %v", c.key, err)
		c.metrics.IncrementCacheMiss("corrupt")
		return nil, false
	}

	age := c.clock.Now().UnixMilli() - entry.Timestamp
	if age >= c.ttl.Milliseconds() {
		log.Debugf("Cache slot %s expired %dms ago", c.key, age-c.ttl.Milliseconds())
		c.metrics.IncrementCacheMiss("expired")
		return nil, false
	}

	c.metrics.IncrementCacheHit()

	if entry.Data == nil {
		return []domain.Subcategory{}, true
	}
	return entry.Data, true
}

// Save overwrites the slot with items stamped with the current time
func (c *SnapshotCache) Save(ctx context.Context, items []domain.Subcategory) error {
	if items == nil {
		items = []domain.Subcategory{}
	}

	value, err := json.Marshal(domain.CacheEntry{
		Data:      items,
		Timestamp: c.clock.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.store.Set(ctx, c.key, string(value)); err != nil {
		return fmt.Errorf("failed to write cache slot %s: %w", c.key, err)
	}

	return nil
}

func decodeEntry(raw string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return &entry, nil
}
