package service

import (
	"context"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// SearchService defines the interface for one-shot search business logic.
type SearchService interface {
	Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error)
	CacheStats(ctx context.Context) cache.Stats
	ClearCache(ctx context.Context) bool
	// Close waits for pending asynchronous cache writes.
	Close()
}
