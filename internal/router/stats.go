package router

import "sync"

// RouteStats counts invocations of one route.
type RouteStats struct {
	Succeeded int64
	Failed    int64
	Emitted   int64
}

// Stats is a concurrency-safe per-route counter set.
type Stats struct {
	mu     sync.Mutex
	routes map[string]RouteStats
}

func newStats() *Stats {
	return &Stats{routes: make(map[string]RouteStats)}
}

func (s *Stats) recordSuccess(route string, emitted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.routes[route]
	st.Succeeded++
	st.Emitted += int64(emitted)
	s.routes[route] = st
}

func (s *Stats) recordFailure(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.routes[route]
	st.Failed++
	s.routes[route] = st
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() map[string]RouteStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RouteStats, len(s.routes))
	for k, v := range s.routes {
		out[k] = v
	}
	return out
}
