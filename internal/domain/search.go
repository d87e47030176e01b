package domain

import "strings"

// Result categories addressed by load-more and the websocket protocol.
const (
	CategoryProducts   = "products"
	CategoryShops      = "shops"
	CategoryCategories = "categories"
)

// Categories lists every result category in display order.
var Categories = []string{CategoryProducts, CategoryShops, CategoryCategories}

// IsValidCategory reports whether name is one of the result categories.
func IsValidCategory(name string) bool {
	switch name {
	case CategoryProducts, CategoryShops, CategoryCategories:
		return true
	}
	return false
}

// Filters is the free-form filter set attached to a search (city, price range, brand, ...).
type Filters map[string]any

// Clone returns a shallow copy so callers can keep mutating their own map.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SearchResults is the payload returned by the remote search service and stored in the cache.
type SearchResults struct {
	Products   []Product  `json:"products"`
	Shops      []Shop     `json:"shops"`
	Categories []Category `json:"categories"`
	Totals     Totals     `json:"totals"`
}

// Totals carries the per-category hit counts reported by the search service.
type Totals struct {
	Products   int `json:"products"`
	Shops      int `json:"shops"`
	Categories int `json:"categories"`
	Total      int `json:"total"`
}

// Product is a marketplace listing.
type Product struct {
	ID       string   `json:"_id"`
	Title    string   `json:"title"`
	Slug     string   `json:"slug,omitempty"`
	Price    float64  `json:"price"`
	Category string   `json:"category,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	City     string   `json:"city,omitempty"`
	ShopID   string   `json:"shopId,omitempty"`
	Images   []string `json:"images,omitempty"`
}

// Shop is a seller storefront.
type Shop struct {
	ID       string `json:"_id"`
	Name     string `json:"shopName"`
	Slug     string `json:"slug,omitempty"`
	City     string `json:"city,omitempty"`
	Logo     string `json:"shopLogo,omitempty"`
	Verified bool   `json:"shopVerified,omitempty"`
}

// Category is a catalog category matching the query.
type Category struct {
	ID    string `json:"_id,omitempty"`
	Title string `json:"title"`
	Slug  string `json:"slug,omitempty"`
	Count int    `json:"count,omitempty"`
}

// Normalize substitutes defaults for missing fields: nil slices become empty and
// zero totals are derived from the slices that were returned.
func (r *SearchResults) Normalize() {
	if r.Products == nil {
		r.Products = []Product{}
	}
	if r.Shops == nil {
		r.Shops = []Shop{}
	}
	if r.Categories == nil {
		r.Categories = []Category{}
	}
	if r.Totals.Products < len(r.Products) {
		r.Totals.Products = len(r.Products)
	}
	if r.Totals.Shops < len(r.Shops) {
		r.Totals.Shops = len(r.Shops)
	}
	if r.Totals.Categories < len(r.Categories) {
		r.Totals.Categories = len(r.Categories)
	}
	if sum := r.Totals.Products + r.Totals.Shops + r.Totals.Categories; r.Totals.Total < sum {
		r.Totals.Total = sum
	}
}

// Len returns the number of fetched items in the given category.
func (r *SearchResults) Len(category string) int {
	switch category {
	case CategoryProducts:
		return len(r.Products)
	case CategoryShops:
		return len(r.Shops)
	case CategoryCategories:
		return len(r.Categories)
	}
	return 0
}

// Slice returns a copy of r where each category keeps at most visible[category] items.
func (r *SearchResults) Slice(visible map[string]int) SearchResults {
	return SearchResults{
		Products:   r.Products[:clamp(visible[CategoryProducts], len(r.Products))],
		Shops:      r.Shops[:clamp(visible[CategoryShops], len(r.Shops))],
		Categories: r.Categories[:clamp(visible[CategoryCategories], len(r.Categories))],
		Totals:     r.Totals,
	}
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

// SearchRequest is the one-shot REST search request.
type SearchRequest struct {
	Query   string `form:"q" binding:"required"`
	Filters Filters
}

// SearchResponse is the one-shot REST search response.
type SearchResponse struct {
	Query   string        `json:"query"`
	Key     string        `json:"key"`
	Cached  bool          `json:"cached"`
	Stale   bool          `json:"stale,omitempty"`
	Results SearchResults `json:"results"`
}

// EqualFoldTrim compares two user-facing terms ignoring case and surrounding spaces.
func EqualFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
