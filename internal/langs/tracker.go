package langs

import (
	"sort"
	"sync"
)

// DefaultActivityDivisor trades recall of rare languages against noise from
// one-off mistagged codes. Observed workable values range from 300 to 1000.
const DefaultActivityDivisor = 1000

// Tracker counts language sightings over the lifetime of the process and
// derives the set of "known" languages from relative popularity, so the set
// adapts to the stream's composition without a curated allowlist. Counts
// never shrink; only a restart resets them.
//
// The ingestion controller is the only writer; the HTTP surface reads
// concurrently, hence the lock.
type Tracker struct {
	mu      sync.Mutex
	divisor int64
	counts  map[string]int64
	top     int64
}

// NewTracker creates a Tracker. A divisor <= 0 falls back to the default.
func NewTracker(divisor int64) *Tracker {
	if divisor <= 0 {
		divisor = DefaultActivityDivisor
	}
	return &Tracker{
		divisor: divisor,
		counts:  map[string]int64{},
	}
}

// AddSighting increments the count for lang, which may be the Untagged
// sentinel.
func (t *Tracker) AddSighting(lang string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[lang]++
	if t.counts[lang] > t.top {
		t.top = t.counts[lang]
	}
}

// Active returns the languages whose sighting count strictly exceeds
// top/divisor (integer division), ordered by descending count. Equal counts
// have no defined order. No sightings yields an empty slice.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	threshold := t.top / t.divisor
	active := []string{}
	for lang, count := range t.counts {
		if count > threshold {
			active = append(active, lang)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return t.counts[active[i]] > t.counts[active[j]]
	})
	return active
}

// Snapshot copies the full sighting table, for the stats surface.
func (t *Tracker) Snapshot() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.counts))
	for lang, count := range t.counts {
		out[lang] = count
	}
	return out
}
