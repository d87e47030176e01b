package orchestrator

import (
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
)

// Status is the orchestrator's position in the search state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusDebouncing
	StatusResolving
	StatusDisplayed
	StatusErrored
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusDebouncing: "debouncing",
	StatusResolving:  "resolving",
	StatusDisplayed:  "displayed",
	StatusErrored:    "errored",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText makes Status render as its name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SearchFailedMessage is shown when both the network and the cache came up empty.
const SearchFailedMessage = "search failed, try again"

// Snapshot is the reactive view consumed by presentation code.
type Snapshot struct {
	Status       Status               `json:"status"`
	Query        string               `json:"query"`
	Filters      domain.Filters       `json:"filters,omitempty"`
	Results      domain.SearchResults `json:"results"`
	HasMore      map[string]bool      `json:"hasMore"`
	IsLoading    bool                 `json:"isLoading"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
	Suggestions  []string             `json:"suggestions"`
	// Stale is set while cached data is shown: before revalidation lands, or as an error fallback.
	Stale      bool   `json:"stale"`
	Generation uint64 `json:"generation"`
}
