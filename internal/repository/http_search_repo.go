package repository

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

const searchPath = "/search"

type httpSearchRepository struct {
	client *resty.Client
}

// searchEnvelope accepts both the bare payload and {"data": payload}.
type searchEnvelope struct {
	domain.SearchResults
	Data *domain.SearchResults `json:"data"`
}

// NewHTTPSearchRepository creates a repository calling the marketplace search API at cfg.BaseURL.
func NewHTTPSearchRepository(cfg config.SearchConfig) SearchRepository {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return NewHTTPSearchRepositoryWithClient(client)
}

// NewHTTPSearchRepositoryWithClient wraps an already configured resty client.
func NewHTTPSearchRepositoryWithClient(client *resty.Client) SearchRepository {
	return &httpSearchRepository{client: client}
}

func (r *httpSearchRepository) Search(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, error) {
	req := r.client.R().
		SetContext(ctx).
		SetQueryParam("q", query)
	for k, v := range filters {
		if v == nil {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			req.SetQueryParam(k, s)
		}
	}

	var envelope searchEnvelope
	resp, err := req.SetResult(&envelope).Get(searchPath)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.SearchResults{}, ctxErr
	}
	if err != nil {
		return domain.SearchResults{}, fmt.Errorf("failed to call search api: %w", err)
	}
	if resp.IsError() {
		return domain.SearchResults{}, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode())
	}

	results := envelope.SearchResults
	if envelope.Data != nil {
		results = *envelope.Data
	}
	results.Normalize()
	return results, nil
}
