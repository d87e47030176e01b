// Package orchestrator turns a stream of query and filter changes into at most one
// authoritative search per settled input. It debounces input, fences late responses by
// generation, cancels superseded requests, serves cached results while revalidating and
// falls back to the cache when the network fails.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
)

// Searcher is the remote search API.
type Searcher interface {
	Search(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, error)
}

// ResultCache is the part of cache.SearchResultCache the orchestrator relies on.
type ResultCache interface {
	Lookup(ctx context.Context, query string, filters domain.Filters) cache.Lookup
	Fallback(ctx context.Context, query string, filters domain.Filters) (domain.SearchResults, bool)
	Set(ctx context.Context, query string, filters domain.Filters, data domain.SearchResults) bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator is one logical search session. All methods are safe for concurrent use.
type Orchestrator struct {
	searcher       Searcher
	cache          ResultCache
	debounce       time.Duration
	pageSize       int
	maxSuggestions int
	logger         zerolog.Logger

	mu           sync.Mutex
	query        string
	filters      domain.Filters
	status       Status
	generation   uint64
	pendingKey   string // debouncing or in flight
	displayedKey string
	timer        *time.Timer
	cancel       context.CancelFunc
	full         domain.SearchResults
	visible      map[string]int
	loading      bool
	stale        bool
	errMsg       string
	suggestions  []string
	closed       bool

	subs    map[int]chan Snapshot
	nextSub int

	wg sync.WaitGroup
}

// New creates an idle orchestrator. Zero config values take the defaults.
func New(searcher Searcher, resultCache ResultCache, cfg config.OrchestratorConfig, opts ...Option) *Orchestrator {
	defaults := config.DefaultOrchestratorConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = defaults.MaxSuggestions
	}

	o := &Orchestrator{
		searcher:       searcher,
		cache:          resultCache,
		debounce:       cfg.Debounce,
		pageSize:       cfg.PageSize,
		maxSuggestions: cfg.MaxSuggestions,
		logger:         log.L(),
		filters:        domain.Filters{},
		subs:           make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetQuery records new query text and (re)arms the debounce timer.
func (o *Orchestrator) SetQuery(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.query = text
	o.scheduleLocked()
}

// SetFilters replaces the filter set and (re)arms the debounce timer.
func (o *Orchestrator) SetFilters(filters domain.Filters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.filters = filters.Clone()
	o.scheduleLocked()
}

// LoadMore reveals another page of an already fetched category. It never hits the network
// and reports whether anything new became visible.
func (o *Orchestrator) LoadMore(category string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.status != StatusDisplayed || !domain.IsValidCategory(category) {
		return false
	}
	if o.visible[category] >= o.full.Len(category) {
		return false
	}
	o.visible[category] += o.pageSize
	o.notifyLocked()
	return true
}

// Clear drops the query, cancels pending work and returns to idle. Filters are kept.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.query = ""
	o.supersedeLocked()
	o.resetLocked()
	o.notifyLocked()
}

// Close ends the session: pending work is cancelled, subscribers are closed and Close
// waits for the resolving goroutine to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.supersedeLocked()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.mu.Unlock()

	o.wg.Wait()
}

// Snapshot returns the current view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every change. Slow readers only
// see the latest one. The channel is closed by the returned func or by Close.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
	}
}

func (o *Orchestrator) scheduleLocked() {
	if strings.TrimSpace(o.query) == "" {
		o.supersedeLocked()
		o.resetLocked()
		o.notifyLocked()
		return
	}

	key := cache.BuildKey(o.query, o.filters)
	if o.status != StatusErrored {
		if key == o.pendingKey || (o.pendingKey == "" && o.status == StatusDisplayed && key == o.displayedKey) {
			return
		}
	}

	o.supersedeLocked()
	gen := o.generation
	o.pendingKey = key
	o.status = StatusDebouncing
	o.errMsg = ""

	query, filters := o.query, o.filters.Clone()
	o.wg.Add(1)
	o.timer = time.AfterFunc(o.debounce, func() {
		defer o.wg.Done()
		o.resolve(gen, key, query, filters)
	})
	o.notifyLocked()
}

// supersedeLocked invalidates every outstanding timer and request.
func (o *Orchestrator) supersedeLocked() {
	o.generation++
	if o.timer != nil {
		if o.timer.Stop() {
			o.wg.Done()
		}
		o.timer = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.pendingKey = ""
	o.loading = false
}

func (o *Orchestrator) resetLocked() {
	o.status = StatusIdle
	o.displayedKey = ""
	o.full = domain.SearchResults{}
	o.visible = nil
	o.stale = false
	o.errMsg = ""
	o.suggestions = nil
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && gen == o.generation
}

// resolve runs once the debounce window for generation gen has elapsed.
func (o *Orchestrator) resolve(gen uint64, key, query string, filters domain.Filters) {
	o.mu.Lock()
	if o.closed || gen != o.generation {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := o.logger.With().Uint64(log.FieldGeneration, gen).Str(log.FieldCacheKey, key).Logger()
	ctx = log.WithLogger(ctx, l)
	o.timer = nil
	o.cancel = cancel
	o.status = StatusResolving
	o.mu.Unlock()

	cached := o.cache.Lookup(ctx, query, filters)

	o.mu.Lock()
	if o.closed || gen != o.generation {
		o.mu.Unlock()
		return
	}
	hit := cached.Status == cache.StatusFresh
	if hit {
		o.displayLocked(cached.Data, key, query, true, true)
	} else {
		o.loading = true
	}
	o.notifyLocked()
	o.mu.Unlock()

	data, err := o.searcher.Search(ctx, query, filters)

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || !o.current(gen) {
			requestsMetric.WithLabelValues("superseded").Inc()
			l.Debug().Msg("search superseded")
			return
		}
		o.handleFailure(ctx, gen, key, query, filters, hit, cached, err)
		return
	}

	// Generation check and cache write happen under one lock hold.
	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil || o.closed || gen != o.generation {
		requestsMetric.WithLabelValues("superseded").Inc()
		l.Debug().Msg("late response discarded")
		return
	}
	o.cache.Set(ctx, query, filters, data)
	o.cancel = nil
	o.pendingKey = ""
	// A revalidation keeps the user's load-more depth.
	o.displayLocked(data, key, query, false, !hit)
	requestsMetric.WithLabelValues("applied").Inc()
	o.notifyLocked()
}

func (o *Orchestrator) handleFailure(ctx context.Context, gen uint64, key, query string, filters domain.Filters, hit bool, cached cache.Lookup, err error) {
	l := log.Ctx(ctx)

	var (
		fallback domain.SearchResults
		ok       bool
	)
	if !hit {
		fallback, ok = o.cache.Fallback(ctx, query, filters)
		if !ok && cached.Status == cache.StatusExpired {
			fallback, ok = cached.Data, true
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.generation {
		requestsMetric.WithLabelValues("superseded").Inc()
		return
	}
	o.cancel = nil
	o.pendingKey = ""

	switch {
	case hit:
		// Revalidation failed: keep showing the cached data.
		o.loading = false
		requestsMetric.WithLabelValues("fallback").Inc()
		l.Debug().Err(err).Msg("revalidation failed")
	case ok:
		o.displayLocked(fallback, key, query, true, true)
		requestsMetric.WithLabelValues("fallback").Inc()
		l.Warn().Err(err).Msg("search failed, showing cached results")
	default:
		o.resetLocked()
		o.status = StatusErrored
		o.loading = false
		o.errMsg = SearchFailedMessage
		requestsMetric.WithLabelValues("failed").Inc()
		l.Warn().Err(err).Msg("search failed")
	}
	o.notifyLocked()
}

func (o *Orchestrator) displayLocked(data domain.SearchResults, key, query string, stale, resetPaging bool) {
	data.Normalize()
	o.full = data
	o.displayedKey = key
	o.status = StatusDisplayed
	o.loading = false
	o.stale = stale
	o.errMsg = ""
	if resetPaging || o.visible == nil {
		o.visible = make(map[string]int, len(domain.Categories))
		for _, c := range domain.Categories {
			o.visible[c] = o.pageSize
		}
	}
	o.suggestions = Suggest(data, query, o.maxSuggestions)
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       o.status,
		Query:        o.query,
		Filters:      o.filters.Clone(),
		Results:      o.full.Slice(o.visible),
		HasMore:      make(map[string]bool, len(domain.Categories)),
		IsLoading:    o.loading,
		ErrorMessage: o.errMsg,
		Suggestions:  append([]string(nil), o.suggestions...),
		Stale:        o.stale,
		Generation:   o.generation,
	}
	snap.Results.Normalize()
	for _, c := range domain.Categories {
		snap.HasMore[c] = o.visible[c] < o.full.Len(c)
	}
	return snap
}

func (o *Orchestrator) notifyLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
