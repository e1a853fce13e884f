// Package syncstore orchestrates stop loading, searching and variant
// enrichment, exposing the results as whole-value snapshots.
package syncstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transitsync/internal/geo"
	"transitsync/internal/transit"
)

// Client is the slice of the transit API the store depends on.
type Client interface {
	NearbyStops(ctx context.Context, pt geo.Point, shortNames bool) ([]transit.Stop, error)
	SearchStops(ctx context.Context, query string, shortNames bool) ([]transit.Stop, error)
	Stop(ctx context.Context, number int) (*transit.Stop, error)
	VariantsForStop(ctx context.Context, number int) ([]transit.Variant, error)
	BulkVariants(ctx context.Context, numbers []int) ([]transit.Variant, error)
}

// VariantCache is the persistent stop→variants mapping consulted before the API.
type VariantCache interface {
	Variants(ctx context.Context, stopNumber int) ([]transit.Variant, error)
	PutVariants(ctx context.Context, stopNumber int, variants []transit.Variant) error
	ClearAll(ctx context.Context) error
}

const (
	// cacheMaxAge bounds how long a loaded stop list is served without a
	// fresh network call.
	cacheMaxAge = 30 * time.Second
	// cacheMoveThreshold is how far the caller may drift from where the list
	// was captured before it goes stale: a third of the search radius.
	cacheMoveThreshold = transit.NearbyRadiusMeters / 3.0

	debounceDelay     = time.Second
	maxEnrichInFlight = 4
)

// Snapshot is a consistent copy of the store's observable state. Load and
// search carry separate error channels so one surface's failure never
// clobbers the other's results.
type Snapshot struct {
	Stops         []transit.Stop
	Loading       bool
	Err           error
	SearchResults []transit.Stop
	Searching     bool
	SearchErr     error
}

// Store coordinates loads, searches and enrichment against the transit API
// and the variant cache. All mutable state is replaced whole-value under one
// mutex, so readers always see consistent lists.
type Store struct {
	api    Client
	cache  VariantCache
	logger *slog.Logger

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now      func() time.Time
	debounce time.Duration

	mu      sync.Mutex
	stops   []transit.Stop
	loading bool
	err     error

	searchResults []transit.Stop
	searching     bool
	searchErr     error
	searchCancel  context.CancelFunc

	loadCancel   context.CancelFunc
	enrichCancel context.CancelFunc

	cachedOK    bool
	cachedAt    time.Time
	cachedLoc   geo.Point
	cachedStops []transit.Stop

	subs   map[int]chan Snapshot
	nextID int
}

// New creates a store. The store owns a supervisory scope: Close cancels
// every task it ever started.
func New(api Client, cache VariantCache, logger *slog.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		api:      api,
		cache:    cache,
		logger:   logger,
		rootCtx:  ctx,
		cancel:   cancel,
		now:      time.Now,
		debounce: debounceDelay,
		subs:     make(map[int]chan Snapshot),
	}
}

// LoadStops fetches the stops around pt. A call made while a load is already
// in flight is dropped. Unless force is set, a recent list captured near pt
// is served without touching the network.
func (s *Store) LoadStops(pt geo.Point, force bool) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return
	}
	if !force && s.cacheValidLocked(pt, s.now()) {
		s.stops = snapshotStops(s.cachedStops)
		s.err = nil
		s.mu.Unlock()
		s.publish()
		return
	}
	s.loading = true
	s.err = nil
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.loadCancel = cancel
	s.mu.Unlock()
	s.publish()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.doLoad(ctx, pt)
	}()
}

func (s *Store) doLoad(ctx context.Context, pt geo.Point) {
	stops, err := s.api.NearbyStops(ctx, pt, true)
	if ctx.Err() != nil {
		// Cancellation is never a user-visible error.
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Lock()
		s.loading = false
		// Results already on screen stay there; the failure rides alongside.
		s.err = err
		s.mu.Unlock()
		s.publish()
		s.logger.Warn("nearby stop load failed", "error", err)
		return
	}

	now := s.now()
	s.mu.Lock()
	s.loading = false
	s.stops = stops
	s.cachedOK = true
	s.cachedAt = now
	s.cachedLoc = pt
	s.cachedStops = snapshotStops(stops)
	// A new batch supersedes any enrichment still running for the old one.
	if s.enrichCancel != nil {
		s.enrichCancel()
	}
	enrichCtx, cancel := context.WithCancel(s.rootCtx)
	s.enrichCancel = cancel
	s.mu.Unlock()
	s.publish()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.enrich(enrichCtx, snapshotStops(stops), s.publishStop)
	}()
}

func (s *Store) cacheValidLocked(pt geo.Point, now time.Time) bool {
	if !s.cachedOK {
		return false
	}
	if now.Sub(s.cachedAt) >= cacheMaxAge {
		return false
	}
	return s.cachedLoc.DistanceTo(pt) < cacheMoveThreshold
}

// GetStop fetches a single stop by number, bypassing the caches.
func (s *Store) GetStop(ctx context.Context, number int) (*transit.Stop, error) {
	return s.api.Stop(ctx, number)
}

// ClearError discards the last load error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	s.publish()
}

// ClearSearchError discards the last search error.
func (s *Store) ClearSearchError() {
	s.mu.Lock()
	s.searchErr = nil
	s.mu.Unlock()
	s.publish()
}

// CancelAll stops any in-flight load, search and enrichment without tearing
// the store down.
func (s *Store) CancelAll() {
	s.mu.Lock()
	if s.loadCancel != nil {
		s.loadCancel()
		s.loadCancel = nil
	}
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
	if s.enrichCancel != nil {
		s.enrichCancel()
		s.enrichCancel = nil
	}
	s.searching = false
	s.mu.Unlock()
	s.publish()
}

// Close cancels the supervisory scope, waits for background work to drain,
// and closes all subscriber channels. The store must not be used afterwards.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the store's observable state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Stops:         snapshotStops(s.stops),
		Loading:       s.loading,
		Err:           s.err,
		SearchResults: snapshotStops(s.searchResults),
		Searching:     s.searching,
		SearchErr:     s.searchErr,
	}
}

// Subscribe registers an observer. The channel holds only the latest
// snapshot; slow readers miss intermediate states rather than blocking
// writers. The returned func unsubscribes.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// publishStop swaps a freshly enriched stop into the nearby list and the
// cached slot, replacing the whole list so readers never see a partial state.
func (s *Store) publishStop(stop transit.Stop) {
	s.mu.Lock()
	s.stops = replaceStop(s.stops, stop)
	if s.cachedOK {
		s.cachedStops = replaceStop(s.cachedStops, stop)
	}
	s.mu.Unlock()
	s.publish()
}

func (s *Store) publishSearchStop(stop transit.Stop) {
	s.mu.Lock()
	s.searchResults = replaceStop(s.searchResults, stop)
	s.mu.Unlock()
	s.publish()
}

func replaceStop(stops []transit.Stop, stop transit.Stop) []transit.Stop {
	next := snapshotStops(stops)
	for i := range next {
		if next[i].Number == stop.Number {
			next[i] = stop
			break
		}
	}
	return next
}

func snapshotStops(stops []transit.Stop) []transit.Stop {
	if stops == nil {
		return nil
	}
	out := make([]transit.Stop, len(stops))
	copy(out, stops)
	return out
}
