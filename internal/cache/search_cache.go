// Package cache stores previously fetched search results in a key-value store with a
// time-to-live, a hard retention ceiling and least-recently-used eviction. Every storage
// failure is absorbed here: callers only ever see a miss or a false return.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/kvstore"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
)

const cleanupTimeout = 5 * time.Second

var errCorruptEntry = errors.New("corrupt cache entry")

// SearchResultCache owns TTL enforcement, LRU eviction and statistics for search results.
// It only touches keys under its own prefix in the shared store.
type SearchResultCache struct {
	store    kvstore.Store
	prefix   string
	ttl      time.Duration
	maxAge   time.Duration
	capacity int
	now      func() time.Time

	sweep    singleflight.Group
	wg       sync.WaitGroup
	mu       sync.Mutex // orders Dispose against new background cleanups
	disposed atomic.Bool
}

// Option customizes a SearchResultCache.
type Option func(*SearchResultCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *SearchResultCache) {
		c.now = now
	}
}

// NewSearchResultCache creates a cache over store. Zero config values take the defaults.
func NewSearchResultCache(store kvstore.Store, cfg config.CacheConfig, opts ...Option) *SearchResultCache {
	defaults := config.DefaultCacheConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}

	c := &SearchResultCache{
		store:    store,
		prefix:   cfg.Prefix + ":",
		ttl:      cfg.TTL,
		maxAge:   cfg.MaxAge,
		capacity: cfg.Capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SearchResultCache) storageKey(key string) string {
	return c.prefix + key
}

// Get returns the cached data for query+filters when a non-expired entry exists.
// A hit refreshes the entry's last-access time; an expired entry is deleted.
func (c *SearchResultCache) Get(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, bool) {
	res := c.Lookup(ctx, query, filters)
	if res.Status != StatusFresh {
		return domain.SearchResults{}, false
	}
	return res.Data, true
}

// Lookup behaves like Get but also reports entries that just expired. Those are removed
// from the store as usual; their payload is returned with StatusExpired while it is still
// within the retention ceiling so callers can keep it as an error fallback.
func (c *SearchResultCache) Lookup(ctx context.Context, query string, filters domain.Filters) Lookup {
	if c.disposed.Load() {
		return Lookup{}
	}
	l := log.Ctx(ctx)
	key := BuildKey(query, filters)

	entry, _, err := c.load(ctx, c.storageKey(key))
	if err != nil {
		switch {
		case errors.Is(err, kvstore.ErrNotFound):
		case errors.Is(err, errCorruptEntry):
			c.remove(ctx, c.storageKey(key), "corrupt")
		default:
			storageErrorsMetric.WithLabelValues("get").Inc()
			l.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("cache get error")
		}
		lookupsMetric.WithLabelValues("miss").Inc()
		return Lookup{}
	}

	now := c.now()
	if age := entry.Age(now); age > c.ttl {
		c.remove(ctx, c.storageKey(key), "ttl")
		lookupsMetric.WithLabelValues("expired").Inc()
		if age > c.maxAge {
			return Lookup{}
		}
		return Lookup{Data: entry.Data, Status: StatusExpired}
	}

	if err := c.touch(ctx, entry, now); err != nil {
		storageErrorsMetric.WithLabelValues("set").Inc()
		l.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("cache touch error")
	}
	lookupsMetric.WithLabelValues("hit").Inc()
	return Lookup{Data: entry.Data, Status: StatusFresh}
}

// touch refreshes the last-access time of entry. The stored record is read again first
// and left alone when a concurrent Set replaced it since entry was loaded.
func (c *SearchResultCache) touch(ctx context.Context, entry Entry, now time.Time) error {
	current, _, err := c.load(ctx, c.storageKey(entry.Key))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, errCorruptEntry) {
			return nil
		}
		return err
	}
	if current.CreatedAt != entry.CreatedAt {
		return nil
	}
	current.LastAccessedAt = now.UnixMilli()
	return c.save(ctx, current)
}

// Fallback reads an entry ignoring the TTL but honoring the retention ceiling. It never
// mutates the store and is meant for the network-failure path only.
func (c *SearchResultCache) Fallback(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, bool) {
	if c.disposed.Load() {
		return domain.SearchResults{}, false
	}
	key := BuildKey(query, filters)
	entry, _, err := c.load(ctx, c.storageKey(key))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("cache fallback read error")
		}
		return domain.SearchResults{}, false
	}
	if entry.Age(c.now()) > c.maxAge {
		return domain.SearchResults{}, false
	}
	return entry.Data, true
}

// Set writes (or replaces) the entry for query+filters and schedules a background cleanup.
// It reports false on any storage failure.
func (c *SearchResultCache) Set(ctx context.Context, query string, filters domain.Filters, data domain.SearchResults) bool {
	if c.disposed.Load() {
		return false
	}
	key := BuildKey(query, filters)
	now := c.now().UnixMilli()
	entry := Entry{
		Key:            key,
		Data:           data,
		CreatedAt:      now,
		LastAccessedAt: now,
		SourceQuery:    query,
		SourceFilters:  filters.Clone(),
	}

	if err := c.save(ctx, entry); err != nil {
		storageErrorsMetric.WithLabelValues("set").Inc()
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("cache set error")
		return false
	}

	c.scheduleCleanup()
	return true
}

// Clear removes every entry under the cache prefix and leaves other keys alone.
func (c *SearchResultCache) Clear(ctx context.Context) bool {
	if c.disposed.Load() {
		return false
	}
	l := log.Ctx(ctx)
	keys, err := c.ownKeys(ctx)
	if err != nil {
		storageErrorsMetric.WithLabelValues("keys").Inc()
		l.Warn().Err(err).Msg("cache clear: list keys failed")
		return false
	}

	ok := true
	for _, k := range keys {
		if err := c.store.Remove(ctx, k); err != nil {
			storageErrorsMetric.WithLabelValues("remove").Inc()
			l.Warn().Err(err).Str(log.FieldCacheKey, k).Msg("cache clear: remove failed")
			ok = false
		}
	}
	return ok
}

// Reset drops every cached result. It backs the logout path.
func (c *SearchResultCache) Reset(ctx context.Context) bool {
	ok := c.Clear(ctx)
	l := log.Ctx(ctx)
	l.Info().Bool("complete", ok).Msg("search cache reset")
	return ok
}

// Dispose waits for background cleanups and turns every later call into a miss or no-op:
// lookups miss, Set and Clear report false, Stats is empty and Cleanup removes nothing.
func (c *SearchResultCache) Dispose() {
	c.mu.Lock()
	c.disposed.Store(true)
	c.mu.Unlock()
	c.wg.Wait()
}

// Wait blocks until the background cleanups scheduled so far have finished.
func (c *SearchResultCache) Wait() {
	c.wg.Wait()
}

// Stats summarizes the entries currently stored. It never mutates state.
func (c *SearchResultCache) Stats(ctx context.Context) Stats {
	var stats Stats
	if c.disposed.Load() {
		return stats
	}
	keys, err := c.ownKeys(ctx)
	if err != nil {
		storageErrorsMetric.WithLabelValues("keys").Inc()
		return stats
	}

	for _, k := range keys {
		entry, size, err := c.load(ctx, k)
		if err != nil {
			continue
		}
		stats.Count++
		stats.TotalSizeBytes += int64(size)
		if stats.OldestEntryTimestamp == 0 || entry.CreatedAt < stats.OldestEntryTimestamp {
			stats.OldestEntryTimestamp = entry.CreatedAt
		}
		if entry.CreatedAt > stats.NewestEntryTimestamp {
			stats.NewestEntryTimestamp = entry.CreatedAt
		}
	}
	return stats
}

type sweepCandidate struct {
	storageKey string
	entry      Entry
}

// Cleanup sweeps the namespace once: when more than capacity entries exist, the overflow
// with the oldest last access (ties: oldest creation, then key) is removed; independently
// every entry older than the retention ceiling is removed. It returns how many entries
// were deleted. Concurrent Get/Set calls may race with it; the cache stays eventually
// consistent.
func (c *SearchResultCache) Cleanup(ctx context.Context) (int, error) {
	if c.disposed.Load() {
		return 0, nil
	}
	keys, err := c.ownKeys(ctx)
	if err != nil {
		storageErrorsMetric.WithLabelValues("keys").Inc()
		return 0, err
	}

	now := c.now()
	victims := make(map[string]string, 0)
	live := make([]sweepCandidate, 0, len(keys))
	for _, k := range keys {
		entry, _, err := c.load(ctx, k)
		if err != nil {
			if errors.Is(err, errCorruptEntry) {
				victims[k] = "corrupt"
			}
			continue
		}
		live = append(live, sweepCandidate{storageKey: k, entry: entry})
	}

	if overflow := len(live) - c.capacity; overflow > 0 {
		sort.SliceStable(live, func(i, j int) bool {
			a, b := live[i].entry, live[j].entry
			if a.LastAccessedAt != b.LastAccessedAt {
				return a.LastAccessedAt < b.LastAccessedAt
			}
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
			return live[i].storageKey < live[j].storageKey
		})
		for _, cand := range live[:overflow] {
			victims[cand.storageKey] = "lru"
		}
	}

	for _, cand := range live {
		if _, marked := victims[cand.storageKey]; marked {
			continue
		}
		if cand.entry.Age(now) > c.maxAge {
			victims[cand.storageKey] = "max_age"
		}
	}

	removed := 0
	for k, reason := range victims {
		if c.remove(ctx, k, reason) {
			removed++
		}
	}
	return removed, nil
}

func (c *SearchResultCache) scheduleCleanup() {
	c.mu.Lock()
	if c.disposed.Load() {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		// Sets arriving while a sweep runs share its result.
		res, err, _ := c.sweep.Do("cleanup", func() (interface{}, error) {
			return c.Cleanup(ctx)
		})
		l := log.L()
		if err != nil {
			l.Warn().Err(err).Msg("cache cleanup error")
			return
		}
		if removed := res.(int); removed > 0 {
			l.Debug().Int("removed", removed).Msg("cache cleanup")
		}
	}()
}

func (c *SearchResultCache) ownKeys(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	own := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, c.prefix) {
			own = append(own, k)
		}
	}
	return own, nil
}

// load reads and decodes the entry stored under storageKey, returning its encoded size.
func (c *SearchResultCache) load(ctx context.Context, storageKey string) (Entry, int, error) {
	var entry Entry
	raw, err := c.store.Get(ctx, storageKey)
	if err != nil {
		return entry, 0, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, 0, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	return entry, len(raw), nil
}

func (c *SearchResultCache) save(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.store.Set(ctx, c.storageKey(entry.Key), data)
}

func (c *SearchResultCache) remove(ctx context.Context, storageKey, reason string) bool {
	if err := c.store.Remove(ctx, storageKey); err != nil {
		storageErrorsMetric.WithLabelValues("remove").Inc()
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldCacheKey, storageKey).Msg("cache remove error")
		return false
	}
	evictionsMetric.WithLabelValues(reason).Inc()
	return true
}
