package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// BuildKey normalizes a free-text query and a filter set into the canonical cache key
// "<query>:<filters>", e.g. "phone:{}". The query is trimmed and lowercased; filters are
// serialized with sorted keys so construction order never changes the key. Filters with
// nil or empty-string values are dropped.
func BuildKey(query string, filters domain.Filters) string {
	return NormalizeQuery(query) + ":" + serializeFilters(filters)
}

// NormalizeQuery trims and lowercases a query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func serializeFilters(filters domain.Filters) string {
	clean := make(map[string]any, len(filters))
	for k, v := range filters {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		clean[k] = v
	}

	// encoding/json writes map keys in sorted order, nested maps included.
	data, err := json.Marshal(clean)
	if err == nil {
		return string(data)
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, clean[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
