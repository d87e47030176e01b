package cache

import (
	"time"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// Entry is one cached search result. Only LastAccessedAt changes after creation.
type Entry struct {
	Key            string               `json:"key"`
	Data           domain.SearchResults `json:"data"`
	CreatedAt      int64                `json:"createdAt"`      // ms since epoch
	LastAccessedAt int64                `json:"lastAccessedAt"` // ms since epoch, drives LRU order
	SourceQuery    string               `json:"sourceQuery"`
	SourceFilters  domain.Filters       `json:"sourceFilters,omitempty"`
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-e.CreatedAt) * time.Millisecond
}

// Status classifies a Lookup outcome.
type Status int

const (
	StatusMiss    Status = iota // Nothing usable was stored.
	StatusFresh                 // Stored and younger than the TTL.
	StatusExpired               // Older than the TTL but within the retention ceiling; already removed.
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusExpired:
		return "expired"
	default:
		return "miss"
	}
}

// Lookup is the result of SearchResultCache.Lookup.
type Lookup struct {
	Data   domain.SearchResults
	Status Status
}

// Stats is read-only cache introspection.
type Stats struct {
	Count                int   `json:"count"`
	TotalSizeBytes       int64 `json:"totalSizeBytes"`
	OldestEntryTimestamp int64 `json:"oldestEntryTimestamp"`
	NewestEntryTimestamp int64 `json:"newestEntryTimestamp"`
}
