package orchestrator

import (
	"strings"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// Suggest derives up to limit follow-up search terms from a result set: category titles
// first, then each product's category and brand. Terms equal to query (ignoring case and
// surrounding spaces) are skipped and duplicates are folded case-insensitively.
func Suggest(results domain.SearchResults, query string, limit int) []string {
	out := make([]string, 0, limit)
	if limit <= 0 {
		return out
	}
	seen := make(map[string]struct{})

	add := func(term string) bool {
		term = strings.TrimSpace(term)
		if term == "" || domain.EqualFoldTrim(term, query) {
			return false
		}
		folded := strings.ToLower(term)
		if _, dup := seen[folded]; dup {
			return false
		}
		seen[folded] = struct{}{}
		out = append(out, term)
		return len(out) >= limit
	}

	for _, c := range results.Categories {
		if add(c.Title) {
			return out
		}
	}
	for _, p := range results.Products {
		if add(p.Category) || add(p.Brand) {
			return out
		}
	}
	return out
}
