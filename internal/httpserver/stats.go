package httpserver

import (
	"context"
	"sync"
	"time"
)

const (
	// statsInterval is how often a snapshot is recorded.
	statsInterval = 6 * time.Second

	// statsRingSize bounds the history to roughly half a day of snapshots.
	statsRingSize = 7200
)

// snapshot is one point of the service history exposed on /stats.
type snapshot struct {
	T       int64            `json:"t"`
	Cached  int64            `json:"cached"`
	Oldest  int64            `json:"oldest"`
	HitRate float64          `json:"hit_rate"`
	Langs   map[string]int64 `json:"langs"`
	Clients int              `json:"clients"`
}

type statsRing struct {
	mu      sync.Mutex
	max     int
	entries []snapshot
}

func newStatsRing(max int) *statsRing {
	return &statsRing{max: max}
}

func (r *statsRing) add(s snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, s)
	if len(r.entries) > r.max {
		r.entries = r.entries[1:]
	}
}

// list returns the snapshots newest first.
func (r *statsRing) list() []snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]snapshot, len(r.entries))
	for i, s := range r.entries {
		out[len(out)-1-i] = s
	}
	return out
}

// RunStats records a service snapshot on a fixed interval until the context
// is cancelled.
func (s *Server) RunStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.add(s.collect(ctx))
		}
	}
}

func (s *Server) collect(ctx context.Context) snapshot {
	now := time.Now()
	snap := snapshot{
		T:       now.UnixMilli(),
		Langs:   s.tracker.Snapshot(),
		Clients: s.hub.ClientCount(),
	}

	if size, err := s.cache.Size(ctx); err != nil {
		s.logger.Warn("failed to read cache size for stats", "error", err)
	} else {
		snap.Cached = size
	}
	if oldest, ok, err := s.cache.Oldest(ctx); err != nil {
		s.logger.Warn("failed to read cache age for stats", "error", err)
	} else if ok {
		snap.Oldest = (now.UnixMilli() - oldest) / 1000
	}

	hits, misses := s.status.Hits(), s.status.Misses()
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}
	return snap
}
