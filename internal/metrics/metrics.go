// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CacheDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "post_cache_depth",
	Help: "Seconds since the oldest cached post was created",
})

var Posts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "posts",
	Help: "Count of new posts",
}, []string{"lang", "target"})

var SkippedPosts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "posts_skipped",
	Help: "Count of post events that were not persisted in the cache",
}, []string{"reason"})

var PostDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "post_deletes",
	Help: "Count of deleted posts; lang and target only available on cache hits",
}, []string{"lang", "target", "cache"})

// rounded keeps histogram bucket labels readable on graphs; the values are
// whole seconds anyway, so the error is negligible.
func rounded(buckets []float64) []float64 {
	out := make([]float64, len(buckets))
	for i, n := range buckets {
		out[i] = math.Round(n)
	}
	return out
}

var DeletedPostAge = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "post_deleted_age",
	Help:    "Ages of deleted posts in seconds, cache misses excluded",
	Buckets: rounded(prometheus.ExponentialBuckets(20, 1.48, 24)),
}, []string{"target"})

var Observers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "post_deletion_observers",
	Help: "Number of connected deleted-post observers",
})

var LikeRequestFails = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "post_like_request_fails",
	Help: "Failures to fetch like counts for a deleted post",
}, []string{"reason"})
