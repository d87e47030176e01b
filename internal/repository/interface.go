package repository

import (
	"context"
	"errors"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// ErrSearchFailed reports that the remote search backend answered with an error.
var ErrSearchFailed = errors.New("search failed")

// SearchRepository is the remote search API. Implementations must abort the request when
// ctx is cancelled and return results normalized with domain.SearchResults.Normalize.
type SearchRepository interface {
	Search(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, error)
}
