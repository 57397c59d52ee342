package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"heritage/taxonomy/internal/domain"
	"heritage/taxonomy/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// SnapshotCache is the persisted slot the provider reads once and writes at most once
type SnapshotCache interface {
	Load(ctx context.Context) ([]domain.Subcategory, bool)
	Save(ctx context.Context, items []domain.Subcategory) error
}

// CollectionFetcher returns the complete collection or an error, never a partial result
type CollectionFetcher interface {
	GetAll(ctx context.Context) ([]domain.Subcategory, error)
}

// Provider owns the subcategory state shared with read-only consumers.
// It resolves exactly once: from a fresh cached snapshot, from a full
// paginated fetch, or as failed.
type Provider struct {
	cache   SnapshotCache
	fetcher CollectionFetcher
	metrics *metrics.Metrics

	mutex  sync.RWMutex
	state  domain.State
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
}

type Option func(*Provider)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

func New(cache SnapshotCache, fetcher CollectionFetcher, opts ...Option) *Provider {
	p := &Provider{
		cache:   cache,
		fetcher: fetcher,
		state: domain.State{
			Items:     []domain.Subcategory{},
			IsLoading: true,
		},
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start launches the initialization task. Only the first call has any effect.
// The task stops when ctx is cancelled or Close is called.
func (p *Provider) Start(ctx context.Context) {
	p.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)

		p.mutex.Lock()
		p.cancel = cancel
		p.mutex.Unlock()

		go p.run(runCtx)
	})
}

// State returns a copy of the current state
func (p *Provider) State() domain.State {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.state.Clone()
}

// Done is closed once the provider has resolved
func (p *Provider) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the provider resolves or ctx ends
func (p *Provider) Wait(ctx context.Context) (domain.State, error) {
	select {
	case <-p.done:
		return p.State(), nil
	case <-ctx.Done():
		return domain.State{}, ctx.Err()
	}
}

// Close cancels an in-flight initialization. Results arriving afterwards are
// discarded and the cache slot is left untouched. A provider closed before
// Start resolves as failed without running.
func (p *Provider) Close() {
	p.once.Do(func() {
		p.mutex.Lock()
		p.state.IsLoading = false
		p.state.Source = domain.SourceFailed
		p.state.Err = context.Canceled
		p.mutex.Unlock()

		close(p.done)
	})

	p.mutex.RLock()
	cancel := p.cancel
	p.mutex.RUnlock()

	if cancel != nil {
		cancel()
	}
}

func (p *Provider) run(ctx context.Context) {
	defer p.finish(ctx)

	if items, ok := p.cache.Load(ctx); ok {
		log.Infof("✅ Loaded %d subcategories from cache", len(items))
		p.resolve(ctx, items, domain.SourceCache)
		return
	}

	start := time.Now()
	items, err := p.fetcher.GetAll(ctx)
	p.metrics.ObserveFetch(start)
	if err != nil {
		p.metrics.IncrementFetchFailure()
		log.Errorf("❌ Failed to fetch subcategories: %v", err)
		p.fail(err)
		return
	}

	if ctx.Err() != nil {
		log.Warnf("🛑 Discarding %d subcategories fetched after shutdown", len(items))
		return
	}

	if err := p.cache.Save(ctx, items); err != nil {
		log.Warnf("⚠️ Failed to persist subcategories cache: %v", err)
	}

	log.Infof("✅ Fetched %d subcategories", len(items))
	p.resolve(ctx, items, domain.SourceFetch)
}

func (p *Provider) resolve(ctx context.Context, items []domain.Subcategory, source domain.Source) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if ctx.Err() != nil || !p.state.IsLoading {
		return
	}

	p.state = domain.State{
		Items:     items,
		IsLoading: false,
		Source:    source,
	}
}

func (p *Provider) fail(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.state.IsLoading {
		return
	}

	p.state.IsLoading = false
	p.state.Source = domain.SourceFailed
	p.state.Err = err
}

// finish clears the loading flag whatever happened in run and signals waiters
func (p *Provider) finish(ctx context.Context) {
	err := ctx.Err()
	if r := recover(); r != nil {
		log.Errorf("❌ Subcategories provider panicked: %v", r)
		err = fmt.Errorf("provider panicked: %v", r)
	}

	p.mutex.Lock()
	if p.state.IsLoading {
		p.state.IsLoading = false
		p.state.Source = domain.SourceFailed
		p.state.Err = err
	}
	p.mutex.Unlock()

	close(p.done)
}
