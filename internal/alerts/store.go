// Package alerts polls a GTFS-realtime service alerts feed and indexes the
// active alerts by route and stop.
package alerts

import "sync"

// Alert is a parsed service alert.
type Alert struct {
	ID          string
	Header      string
	Description string
	RouteKeys   []string
	StopNumbers []int
	Effect      string // "NO_SERVICE", "DETOUR", etc.
	Cause       string
}

// Store holds the current alert set behind a read-write lock. Replace swaps
// the whole set, so readers never observe a partial update.
type Store struct {
	mu     sync.RWMutex
	alerts []Alert
}

func NewStore() *Store {
	return &Store{}
}

// Replace swaps in a freshly fetched alert set.
func (s *Store) Replace(alerts []Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = alerts
}

// ForStop returns the alerts naming the given stop.
func (s *Store) ForStop(number int) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Alert
	for _, a := range s.alerts {
		for _, n := range a.StopNumbers {
			if n == number {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched
}

// ForRoute returns the alerts naming the given route key.
func (s *Store) ForRoute(routeKey string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Alert
	for _, a := range s.alerts {
		for _, k := range a.RouteKeys {
			if k == routeKey {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched
}

// All returns a copy of every active alert.
func (s *Store) All() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}
