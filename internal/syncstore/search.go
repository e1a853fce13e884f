package syncstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"transitsync/internal/transit"
)

// SearchForStops runs a debounced search for query, combining a local filter
// over the loaded nearby stops with a server-side search. A newer call
// supersedes any search still waiting or in flight; an empty query clears the
// results immediately.
func (s *Store) SearchForStops(query string, shortNames bool) {
	s.mu.Lock()
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
	if query == "" {
		s.searchResults = nil
		s.searchErr = nil
		s.searching = false
		s.mu.Unlock()
		s.publish()
		return
	}
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.searchCancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.doSearch(ctx, query, shortNames)
	}()
}

func (s *Store) doSearch(ctx context.Context, query string, shortNames bool) {
	timer := time.NewTimer(s.debounce)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return
	}

	s.mu.Lock()
	s.searching = true
	s.searchErr = nil
	local := filterStops(s.stops, query)
	s.mu.Unlock()
	s.publish()

	remote, err := s.api.SearchStops(ctx, query, shortNames)
	if ctx.Err() != nil {
		// Superseded by a newer keystroke; vanish silently.
		return
	}

	combined := local
	seen := make(map[int]bool, len(local))
	for _, st := range local {
		seen[st.Number] = true
	}
	for _, st := range remote {
		if !seen[st.Number] {
			combined = append(combined, st)
		}
	}

	s.mu.Lock()
	s.searching = false
	if err != nil && len(combined) == 0 {
		s.searchErr = err
		s.mu.Unlock()
		s.publish()
		s.logger.Warn("stop search failed", "query", query, "error", err)
		return
	}
	if err != nil {
		s.logger.Warn("server search failed, showing local matches only",
			"query", query, "error", err)
	}
	s.searchResults = combined
	s.mu.Unlock()
	s.publish()

	s.enrich(ctx, snapshotStops(combined), s.publishSearchStop)
}

// filterStops returns the loaded stops matching query by name, number, or any
// attached variant key or name, case-insensitively.
func filterStops(stops []transit.Stop, query string) []transit.Stop {
	q := strings.ToLower(query)
	var matched []transit.Stop
	for _, st := range stops {
		if stopMatches(st, q) {
			matched = append(matched, st)
		}
	}
	return matched
}

func stopMatches(st transit.Stop, q string) bool {
	if strings.Contains(strings.ToLower(st.Name), q) {
		return true
	}
	if strings.Contains(strconv.Itoa(st.Number), q) {
		return true
	}
	for _, v := range st.Variants {
		if strings.Contains(strings.ToLower(v.Key), q) ||
			strings.Contains(strings.ToLower(v.Name), q) {
			return true
		}
	}
	return false
}
