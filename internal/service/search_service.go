package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/repository"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
)

const (
	cacheWriteTimeout = 2 * time.Second
	// sharedSearchTimeout bounds a search that outlives every caller waiting on it.
	sharedSearchTimeout = 30 * time.Second
)

type searchServiceImpl struct {
	repo  repository.SearchRepository
	cache *cache.SearchResultCache
	sf    singleflight.Group
	wg    sync.WaitGroup
}

// NewSearchService creates a new search service.
func NewSearchService(repo repository.SearchRepository, resultCache *cache.SearchResultCache) SearchService {
	return &searchServiceImpl{
		repo:  repo,
		cache: resultCache,
	}
}

func (s *searchServiceImpl) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	key := cache.BuildKey(req.Query, req.Filters)
	ctx = log.With(ctx, log.FieldCacheKey, key)
	l := log.Ctx(ctx)

	resp := &domain.SearchResponse{Query: req.Query, Key: key}

	lookup := s.cache.Lookup(ctx, req.Query, req.Filters)
	if lookup.Status == cache.StatusFresh {
		resp.Cached = true
		resp.Results = lookup.Data
		return resp, nil
	}

	// The shared search runs detached from any single caller, so one caller
	// giving up does not fail the others waiting on the same key.
	ch := s.sf.DoChan(key, func() (interface{}, error) {
		searchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedSearchTimeout)
		defer cancel()

		data, err := s.repo.Search(searchCtx, req.Query, req.Filters)
		if err != nil {
			return nil, err
		}
		s.asyncCacheSet(req.Query, req.Filters, data)
		return data, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err == nil {
		if res.Shared {
			l.Debug().Msg("search shared with in-flight request")
		}
		resp.Results = res.Val.(domain.SearchResults)
		return resp, nil
	}
	err := res.Err

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	fallback, ok := s.cache.Fallback(ctx, req.Query, req.Filters)
	if !ok && lookup.Status == cache.StatusExpired {
		fallback, ok = lookup.Data, true
	}
	if !ok {
		return nil, err
	}

	l.Warn().Err(err).Msg("search failed, serving cached results")
	resp.Cached = true
	resp.Stale = true
	resp.Results = fallback
	return resp, nil
}

func (s *searchServiceImpl) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

func (s *searchServiceImpl) ClearCache(ctx context.Context) bool {
	return s.cache.Reset(ctx)
}

func (s *searchServiceImpl) Close() {
	s.wg.Wait()
}

func (s *searchServiceImpl) asyncCacheSet(query string, filters domain.Filters, data domain.SearchResults) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		if !s.cache.Set(ctx, query, filters, data) {
			l := log.L()
			l.Warn().Str(log.FieldQuery, query).Msg("cache set failed")
		}
	}()
}
