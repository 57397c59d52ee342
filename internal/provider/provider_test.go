package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"heritage/taxonomy/internal/cache"
	"heritage/taxonomy/internal/client"
	"heritage/taxonomy/internal/config"
	"heritage/taxonomy/internal/domain"
	"heritage/taxonomy/internal/metrics"
	"heritage/taxonomy/internal/storage"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	slotKey = "subcategories"
	ttl     = 3600000 * time.Millisecond
)

var now = time.UnixMilli(1_760_000_000_000)

type fakeFetcher struct {
	calls   atomic.Int32
	items   []domain.Subcategory
	err     error
	release chan struct{} // when set, GetAll blocks until it is closed, ignoring ctx
}

func (f *fakeFetcher) GetAll(_ context.Context) ([]domain.Subcategory, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.items, f.err
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Set(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

type ProviderSuite struct {
	suite.Suite
	store storage.Store
	clock *clock.Mock
	ctx   context.Context
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	s.store = storage.NewMemoryStore()
	s.clock = clock.NewMock()
	s.clock.Set(now)
	s.ctx = context.Background()
}

func (s *ProviderSuite) newCache(store storage.Store) *cache.SnapshotCache {
	return cache.New(store, slotKey, ttl, cache.WithClock(s.clock))
}

func (s *ProviderSuite) putEntry(items []domain.Subcategory, fetchedAt time.Time) {
	raw, err := json.Marshal(domain.CacheEntry{Data: items, Timestamp: fetchedAt.UnixMilli()})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Set(s.ctx, slotKey, string(raw)))
}

func (s *ProviderSuite) readEntry() domain.CacheEntry {
	raw, found, err := s.store.Get(s.ctx, slotKey)
	s.Require().NoError(err)
	s.Require().True(found)

	var entry domain.CacheEntry
	s.Require().NoError(json.Unmarshal([]byte(raw), &entry))
	return entry
}

func (s *ProviderSuite) startAndWait(p *Provider) domain.State {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	p.Start(ctx)
	state, err := p.Wait(ctx)
	s.Require().NoError(err)
	return state
}

func cached() []domain.Subcategory {
	return []domain.Subcategory{
		{ID: 1, Name: "Manuscripts", Slug: "manuscripts"},
		{ID: 2, Name: "Temples", Slug: "temples"},
	}
}

func fetched() []domain.Subcategory {
	parent := int64(4)
	return []domain.Subcategory{
		{ID: 10, Name: "Textiles", Slug: "textiles", Category: &parent},
	}
}

func (s *ProviderSuite) TestInitialState() {
	p := New(s.newCache(s.store), &fakeFetcher{})

	state := p.State()
	s.True(state.IsLoading)
	s.NotNil(state.Items)
	s.Empty(state.Items)
	s.Equal(domain.SourceNone, state.Source)
}

func (s *ProviderSuite) TestCacheHitSkipsNetwork() {
	s.putEntry(cached(), now.Add(-time.Second))
	fetcher := &fakeFetcher{items: fetched()}

	state := s.startAndWait(New(s.newCache(s.store), fetcher))

	s.False(state.IsLoading)
	s.Equal(cached(), state.Items)
	s.Equal(domain.SourceCache, state.Source)
	s.Zero(fetcher.calls.Load())
}

func (s *ProviderSuite) TestExpiredCacheRefetchesAndOverwrites() {
	s.putEntry(cached(), now.Add(-3600001*time.Millisecond))
	fetcher := &fakeFetcher{items: fetched()}

	state := s.startAndWait(New(s.newCache(s.store), fetcher))

	s.Equal(int32(1), fetcher.calls.Load())
	s.Equal(fetched(), state.Items)
	s.Equal(domain.SourceFetch, state.Source)

	entry := s.readEntry()
	s.Equal(fetched(), entry.Data)
	s.Equal(now.UnixMilli(), entry.Timestamp)
}

func (s *ProviderSuite) TestCorruptCacheFallsBackToFetch() {
	s.Require().NoError(s.store.Set(s.ctx, slotKey, "<html>not json"))
	fetcher := &fakeFetcher{items: fetched()}

	state := s.startAndWait(New(s.newCache(s.store), fetcher))

	s.Equal(int32(1), fetcher.calls.Load())
	s.Equal(fetched(), state.Items)
	s.Equal(fetched(), s.readEntry().Data)
}

func (s *ProviderSuite) TestRederivationAcrossInstances() {
	first := s.startAndWait(New(s.newCache(s.store), &fakeFetcher{items: fetched()}))

	s.clock.Add(30 * time.Minute)
	second := &fakeFetcher{items: cached()}
	state := s.startAndWait(New(s.newCache(s.store), second))

	s.Zero(second.calls.Load())
	s.Equal(first.Items, state.Items)
	s.Equal(domain.SourceCache, state.Source)
}

func (s *ProviderSuite) TestFetchFailureClearsLoading() {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}

	var state domain.State
	s.NotPanics(func() {
		state = s.startAndWait(New(s.newCache(s.store), fetcher))
	})

	s.False(state.IsLoading)
	s.Empty(state.Items)
	s.Equal(domain.SourceFailed, state.Source)
	s.EqualError(state.Err, "connection refused")

	_, found, err := s.store.Get(s.ctx, slotKey)
	s.Require().NoError(err)
	s.False(found, "a failed fetch must not persist anything")
}

func (s *ProviderSuite) TestStorageWriteFailureKeepsFetchedItems() {
	store := new(mockStore)
	store.On("Get", mock.Anything, slotKey).Return("", false, nil)
	store.On("Set", mock.Anything, slotKey, mock.Anything).Return(errors.New("quota exceeded")).Once()

	state := s.startAndWait(New(s.newCache(store), &fakeFetcher{items: fetched()}))

	s.False(state.IsLoading)
	s.NoError(state.Err)
	s.Equal(fetched(), state.Items)
	store.AssertExpectations(s.T())
}

func (s *ProviderSuite) TestResponseWithoutResultsIsNotCached() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `null`)
	}))
	defer srv.Close()

	c := client.NewTaxonomyClient(config.TaxonomyConfig{
		BaseURL:       srv.URL,
		FirstPagePath: "/api/subcategories/",
		PageSize:      100,
		MaxPages:      10,
		Timeout:       5,
	}, nil)
	defer c.Close()

	state := s.startAndWait(New(s.newCache(s.store), c))

	s.False(state.IsLoading)
	s.Equal(domain.SourceFailed, state.Source)
	s.ErrorIs(state.Err, client.ErrMissingResults)
	s.Empty(state.Items)

	_, found, err := s.store.Get(s.ctx, slotKey)
	s.Require().NoError(err)
	s.False(found, "a malformed page must not persist an empty snapshot")
}

func (s *ProviderSuite) TestStartIsIdempotent() {
	fetcher := &fakeFetcher{items: fetched()}
	p := New(s.newCache(s.store), fetcher)

	p.Start(s.ctx)
	p.Start(s.ctx)
	s.startAndWait(p)

	s.Equal(int32(1), fetcher.calls.Load())
}

func (s *ProviderSuite) TestCloseDiscardsLateResults() {
	fetcher := &fakeFetcher{items: fetched(), release: make(chan struct{})}
	p := New(s.newCache(s.store), fetcher)

	p.Start(s.ctx)
	s.Eventually(func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)

	p.Close()
	close(fetcher.release)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		s.FailNow("provider did not resolve after Close")
	}

	state := p.State()
	s.False(state.IsLoading)
	s.Empty(state.Items)
	s.ErrorIs(state.Err, context.Canceled)

	_, found, err := s.store.Get(s.ctx, slotKey)
	s.Require().NoError(err)
	s.False(found)
}

func (s *ProviderSuite) TestCloseBeforeStart() {
	fetcher := &fakeFetcher{items: fetched()}
	p := New(s.newCache(s.store), fetcher)

	p.Close()
	p.Start(s.ctx)

	state, err := p.Wait(s.ctx)
	s.Require().NoError(err)
	s.False(state.IsLoading)
	s.ErrorIs(state.Err, context.Canceled)
	s.Zero(fetcher.calls.Load())
}

func (s *ProviderSuite) TestWaitHonoursContext() {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	defer close(fetcher.release)

	p := New(s.newCache(s.store), fetcher)
	p.Start(s.ctx)

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.True(p.State().IsLoading)
}

func (s *ProviderSuite) TestStateIsACopy() {
	s.putEntry(fetched(), now)
	p := New(s.newCache(s.store), &fakeFetcher{})
	s.startAndWait(p)

	state := p.State()
	state.Items[0].Name = "mutated"
	*state.Items[0].Category = 99

	again := p.State()
	s.Equal("Textiles", again.Items[0].Name)
	s.Equal(int64(4), *again.Items[0].Category)
}

func (s *ProviderSuite) TestMetricsRecorded() {
	m := metrics.New(prometheus.NewRegistry())
	c := cache.New(s.store, slotKey, ttl, cache.WithClock(s.clock), cache.WithMetrics(m))

	s.startAndWait(New(c, &fakeFetcher{err: errors.New("boom")}, WithMetrics(m)))

	s.Equal(1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("absent")))
	s.Equal(1.0, testutil.ToFloat64(m.FetchFailures))
}

// TestPaginatedFetchEndToEnd drives the provider against a real HTTP backend
func (s *ProviderSuite) TestPaginatedFetchEndToEnd() {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.RequestURI())
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.RequestURI() {
		case "/api/subcategories/?limit=100":
			fmt.Fprint(w, `{"results":[{"id":1,"name":"A","slug":"a"},{"id":2,"name":"B","slug":"b"}],"next":"https://host/api/subcategories/?page=2"}`)
		case "/api/subcategories/?page=2":
			fmt.Fprint(w, `{"results":[{"id":3,"name":"C","slug":"c"}],"next":null}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := client.NewTaxonomyClient(config.TaxonomyConfig{
		BaseURL:       srv.URL,
		FirstPagePath: "/api/subcategories/",
		PageSize:      100,
		MaxPages:      10,
		Timeout:       5,
	}, nil)
	defer c.Close()

	state := s.startAndWait(New(s.newCache(s.store), c))

	s.Equal([]domain.Subcategory{
		{ID: 1, Name: "A", Slug: "a"},
		{ID: 2, Name: "B", Slug: "b"},
		{ID: 3, Name: "C", Slug: "c"},
	}, state.Items)

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"/api/subcategories/?limit=100", "/api/subcategories/?page=2"}, requests)
	s.Equal(state.Items, s.readEntry().Data)
}
