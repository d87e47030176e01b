package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/sync/errgroup"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

const defaultESLimit = 50

type esSearchRepository struct {
	client          *elasticsearch.Client
	indexProducts   string
	indexShops      string
	indexCategories string
	limit           int
}

// NewESSearchRepository creates an Elasticsearch-based search repository querying the
// product, shop and category indices in parallel.
func NewESSearchRepository(client *elasticsearch.Client, cfg config.ElasticsearchConfig) SearchRepository {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultESLimit
	}
	return &esSearchRepository{
		client:          client,
		indexProducts:   cfg.IndexProducts,
		indexShops:      cfg.IndexShops,
		indexCategories: cfg.IndexCategories,
		limit:           limit,
	}
}

func (r *esSearchRepository) Search(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, error) {
	var results domain.SearchResults

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		results.Products, results.Totals.Products, err = searchIndex[domain.Product](gCtx, r, r.indexProducts, query,
			[]string{"title^3", "brand^2", "category", "description"}, productFilters(filters))
		return err
	})

	g.Go(func() error {
		var err error
		results.Shops, results.Totals.Shops, err = searchIndex[domain.Shop](gCtx, r, r.indexShops, query,
			[]string{"shopName^2", "description"}, shopFilters(filters))
		return err
	})

	g.Go(func() error {
		var err error
		results.Categories, results.Totals.Categories, err = searchIndex[domain.Category](gCtx, r, r.indexCategories, query,
			[]string{"title"}, nil)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.SearchResults{}, ctxErr
		}
		return domain.SearchResults{}, err
	}

	results.Totals.Total = results.Totals.Products + results.Totals.Shops + results.Totals.Categories
	results.Normalize()
	return results, nil
}

func searchIndex[T any](ctx context.Context, r *esSearchRepository, index, query string, fields []string, filter []map[string]interface{}) ([]T, int, error) {
	boolQuery := map[string]interface{}{
		"must": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": fields,
			},
		},
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	body := map[string]interface{}{
		"size":  r.limit,
		"query": map[string]interface{}{"bool": boolQuery},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(index),
		r.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("%w: elasticsearch error on %s: %s", ErrSearchFailed, index, res.String())
	}

	var result esResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	items := make([]T, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var item T
		if err := json.Unmarshal(hit.Source, &item); err != nil {
			continue
		}
		items = append(items, item)
	}

	return items, result.Hits.Total.Value, nil
}

// productFilters turns the storefront filters into bool filter clauses.
// minPrice/maxPrice become a range on price; anything else is an exact term, or a
// terms clause when the filter carries several values.
func productFilters(filters domain.Filters) []map[string]interface{} {
	clauses := make([]map[string]interface{}, 0, len(filters))
	priceRange := map[string]interface{}{}
	for k, v := range filters {
		if v == nil || fmt.Sprint(v) == "" {
			continue
		}
		switch k {
		case "minPrice":
			priceRange["gte"] = v
		case "maxPrice":
			priceRange["lte"] = v
		default:
			if clause, ok := matchClause(k, v); ok {
				clauses = append(clauses, clause)
			}
		}
	}
	if len(priceRange) > 0 {
		clauses = append(clauses, map[string]interface{}{
			"range": map[string]interface{}{"price": priceRange},
		})
	}
	return clauses
}

func shopFilters(filters domain.Filters) []map[string]interface{} {
	clause, ok := matchClause("city", filters["city"])
	if !ok {
		return nil
	}
	return []map[string]interface{}{clause}
}

// matchClause builds a term clause for a scalar value and a terms clause for a
// multi-valued one. Blank values produce no clause.
func matchClause(field string, v interface{}) (map[string]interface{}, bool) {
	var values []interface{}
	switch tv := v.(type) {
	case nil:
		return nil, false
	case []string:
		for _, s := range tv {
			if strings.TrimSpace(s) != "" {
				values = append(values, s)
			}
		}
	case []interface{}:
		for _, e := range tv {
			if e != nil && strings.TrimSpace(fmt.Sprint(e)) != "" {
				values = append(values, e)
			}
		}
	default:
		if strings.TrimSpace(fmt.Sprint(v)) == "" {
			return nil, false
		}
		return map[string]interface{}{"term": map[string]interface{}{field: v}}, true
	}

	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return map[string]interface{}{"term": map[string]interface{}{field: values[0]}}, true
	default:
		return map[string]interface{}{"terms": map[string]interface{}{field: values}}, true
	}
}

// esResponse is the generic Elasticsearch search response structure.
type esResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
