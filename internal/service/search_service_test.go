package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/kvstore"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/repository"
)

type fakeRepo struct {
	mu      sync.Mutex
	calls   int
	handler func(ctx context.Context, query string) (domain.SearchResults, error)
}

func (r *fakeRepo) Search(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, error) {
	r.mu.Lock()
	r.calls++
	handler := r.handler
	r.mu.Unlock()
	return handler(ctx, query)
}

func (r *fakeRepo) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func phoneResults() domain.SearchResults {
	res := domain.SearchResults{Categories: []domain.Category{{Title: "Smartphones"}, {Title: "Accessories"}}}
	for i := 0; i < 12; i++ {
		res.Products = append(res.Products, domain.Product{ID: fmt.Sprintf("p%d", i), Title: "Phone"})
	}
	res.Normalize()
	return res
}

func newService(t *testing.T, repo *fakeRepo) (*searchServiceImpl, *cache.SearchResultCache, *fakeClock, kvstore.Store) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryStore()
	resultCache := cache.NewSearchResultCache(store, config.DefaultCacheConfig(), cache.WithClock(clock.Now))
	svc := NewSearchService(repo, resultCache).(*searchServiceImpl)
	t.Cleanup(func() {
		svc.Close()
		resultCache.Dispose()
	})
	return svc, resultCache, clock, store
}

// settle waits for the asynchronous cache write and the cleanup it schedules.
func settle(svc *searchServiceImpl, c *cache.SearchResultCache) {
	svc.Close()
	c.Wait()
}

func TestSearchService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{handler: func(context.Context, string) (domain.SearchResults, error) {
		return phoneResults(), nil
	}}
	svc, resultCache, clock, store := newService(t, repo)
	req := &domain.SearchRequest{Query: "phone", Filters: domain.Filters{}}

	resp, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "phone:{}", resp.Key)
	assert.Len(t, resp.Results.Products, 12)
	assert.Len(t, resp.Results.Shops, 0)
	assert.Len(t, resp.Results.Categories, 2)
	settle(svc, resultCache)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"search_cache:phone:{}"}, keys)
	firstCreated := svc.CacheStats(ctx).NewestEntryTimestamp

	clock.Advance(4 * time.Minute)
	resp, err = svc.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Len(t, resp.Results.Products, 12)
	assert.Equal(t, 1, repo.Calls(), "A fresh hit never reaches the network")

	clock.Advance(2 * time.Minute)
	resp, err = svc.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, repo.Calls())
	settle(svc, resultCache)

	stats := svc.CacheStats(ctx)
	assert.Equal(t, 1, stats.Count)
	assert.Greater(t, stats.NewestEntryTimestamp, firstCreated, "Refetch overwrites createdAt")
}

func TestSearchService_DeduplicatesConcurrentSearches(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	repo := &fakeRepo{handler: func(context.Context, string) (domain.SearchResults, error) {
		started <- struct{}{}
		<-release
		return phoneResults(), nil
	}}
	svc, _, _, _ := newService(t, repo)

	var wg sync.WaitGroup
	results := make([]*domain.SearchResponse, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.Search(context.Background(), &domain.SearchRequest{Query: " Phone "})
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, repo.Calls())
	for _, resp := range results {
		require.NotNil(t, resp)
		assert.Len(t, resp.Results.Products, 12)
	}
}

func TestSearchService_FallbackOnNetworkFailure(t *testing.T) {
	ctx := context.Background()
	fail := false
	var mu sync.Mutex
	repo := &fakeRepo{handler: func(context.Context, string) (domain.SearchResults, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return domain.SearchResults{}, fmt.Errorf("%w: status 503", repository.ErrSearchFailed)
		}
		return phoneResults(), nil
	}}
	svc, resultCache, clock, _ := newService(t, repo)
	req := &domain.SearchRequest{Query: "phone"}

	_, err := svc.Search(ctx, req)
	require.NoError(t, err)
	settle(svc, resultCache)

	mu.Lock()
	fail = true
	mu.Unlock()
	clock.Advance(6 * time.Minute)

	resp, err := svc.Search(ctx, req)
	require.NoError(t, err, "An expired entry within the ceiling hides the failure")
	assert.True(t, resp.Stale)
	assert.True(t, resp.Cached)
	assert.Len(t, resp.Results.Products, 12)

	_, err = svc.Search(ctx, &domain.SearchRequest{Query: "tv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrSearchFailed))
}

func TestSearchService_CancelledSearchIsNotAnError(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	repo := &fakeRepo{handler: func(ctx context.Context, _ string) (domain.SearchResults, error) {
		select {
		case <-ctx.Done():
			return domain.SearchResults{}, ctx.Err()
		case <-release:
			return phoneResults(), nil
		}
	}}
	svc, resultCache, _, _ := newService(t, repo)
	require.True(t, resultCache.Set(context.Background(), "phone", nil, phoneResults()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Search(ctx, &domain.SearchRequest{Query: "tv"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearchService_CallerCancelDoesNotFailSharedSearch(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	repo := &fakeRepo{handler: func(ctx context.Context, _ string) (domain.SearchResults, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return domain.SearchResults{}, ctx.Err()
		case <-release:
			return phoneResults(), nil
		}
	}}
	svc, _, _, _ := newService(t, repo)
	req := &domain.SearchRequest{Query: "phone"}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Search(leaderCtx, req)
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		resp *domain.SearchResponse
		err  error
	}
	follower := make(chan outcome, 1)
	go func() {
		resp, err := svc.Search(context.Background(), req)
		follower <- outcome{resp, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		assert.True(t, errors.Is(err, context.Canceled), "The cancelled caller returns at once")
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting on the shared search")
	}

	close(release)
	got := <-follower
	require.NoError(t, got.err, "Another caller's cancellation must not fail this one")
	assert.False(t, got.resp.Stale)
	assert.Len(t, got.resp.Results.Products, 12)
	assert.Equal(t, 1, repo.Calls())
}

func TestSearchService_ClearCache(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{handler: func(context.Context, string) (domain.SearchResults, error) {
		return phoneResults(), nil
	}}
	svc, resultCache, _, _ := newService(t, repo)

	_, err := svc.Search(ctx, &domain.SearchRequest{Query: "phone"})
	require.NoError(t, err)
	settle(svc, resultCache)
	require.Equal(t, 1, svc.CacheStats(ctx).Count)

	assert.True(t, svc.ClearCache(ctx))
	assert.Zero(t, svc.CacheStats(ctx).Count)
}
