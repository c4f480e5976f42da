// Package ingest owns the upstream Jetstream connection: connect and
// reconnect with backoff, resume from a cursor, drive normalized events into
// the post store and language tracker, and gate live broadcast until the
// stream has caught up after replay.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/calbers/lastwords/internal/broadcast"
	"github.com/calbers/lastwords/internal/jetstream"
	"github.com/calbers/lastwords/internal/langs"
	"github.com/calbers/lastwords/internal/likes"
	"github.com/calbers/lastwords/internal/metrics"
	"github.com/calbers/lastwords/internal/store"
)

const trimInterval = 8 * time.Second

// Deliverer receives correlated deletions cleared for live broadcast.
// *broadcast.Hub is the production implementation.
type Deliverer interface {
	Deliver(post broadcast.DeletedPost)
}

// wantedCollections is the set of AT Proto collection NSIDs requested from
// Jetstream. Only post events are needed.
var wantedCollections = []string{
	"app.bsky.feed.post",
}

// Ingester consumes the upstream stream. It is the sole writer of the post
// store and the language tracker; upstream messages are handled strictly
// sequentially, so a create is durably stored before any later delete for
// the same rkey is processed.
type Ingester struct {
	url          string
	replayWindow time.Duration
	tolerance    time.Duration

	posts   store.PostStore
	tracker *langs.Tracker
	hub     Deliverer
	likes   *likes.Client // nil disables like lookups
	logger  *slog.Logger

	cursor    atomic.Int64 // monotonic watermark, microseconds
	connected atomic.Bool
	replaying atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an Ingester. likesClient may be nil.
func New(
	jetstreamURL string,
	posts store.PostStore,
	tracker *langs.Tracker,
	hub Deliverer,
	likesClient *likes.Client,
	replayWindow time.Duration,
	tolerance time.Duration,
	logger *slog.Logger,
) *Ingester {
	return &Ingester{
		url:          jetstreamURL,
		replayWindow: replayWindow,
		tolerance:    tolerance,
		posts:        posts,
		tracker:      tracker,
		hub:          hub,
		likes:        likesClient,
		logger:       logger,
	}
}

// Ready reports whether the upstream connection is open and replay has
// finished. The readiness endpoint serves this.
func (i *Ingester) Ready() bool {
	return i.connected.Load() && !i.replaying.Load()
}

// Hits returns the number of delete events correlated to cached content.
func (i *Ingester) Hits() int64 { return i.hits.Load() }

// Misses returns the number of delete events with no cached content.
func (i *Ingester) Misses() int64 { return i.misses.Load() }

// Run consumes the stream until ctx is cancelled, reconnecting forever with
// exponential backoff and jitter. The cursor starts at now minus the replay
// window so a fresh process rebuilds enough cache to correlate near-term
// deletions instead of starting cold.
func (i *Ingester) Run(ctx context.Context) error {
	i.cursor.Store(time.Now().Add(-i.replayWindow).UnixMicro())
	i.replaying.Store(true)

	go i.trimLoop(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // retried forever

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := i.subscribe(ctx, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		i.logger.Error("stream connection ended, reconnecting", "error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (i *Ingester) buildURL() string {
	u, err := url.Parse(i.url)
	if err != nil {
		return i.url
	}
	q := u.Query()
	for _, c := range wantedCollections {
		q.Add("wantedCollections", c)
	}
	q.Set("cursor", fmt.Sprintf("%d", i.cursor.Load()))
	u.RawQuery = q.Encode()
	return u.String()
}

func (i *Ingester) subscribe(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	wsURL := i.buildURL()
	i.logger.Info("connecting to jetstream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial jetstream: %w", err)
	}
	defer conn.Close()

	// a successful open resets the retry schedule
	bo.Reset()

	i.logger.Info("connected to jetstream")
	i.connected.Store(true)
	defer i.connected.Store(false)

	// every (re)connect resumes from the cursor and replays backlog; gate
	// broadcast again until this connection catches up
	i.replaying.Store(true)

	// unblock the read loop when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		i.handleMessage(ctx, data)
	}
}

// handleMessage processes one upstream frame. Malformed payloads are logged
// and dropped; nothing here terminates the connection.
func (i *Ingester) handleMessage(ctx context.Context, data []byte) {
	evt, err := jetstream.ParseEvent(data)
	if err != nil {
		metrics.SkippedPosts.WithLabelValues("parse failed").Inc()
		i.logger.Error("failed to parse event", "error", err)
		return
	}

	msg := jetstream.Filter(evt)
	if msg == nil {
		return
	}

	if evt.TimeUS > i.cursor.Load() {
		i.cursor.Store(evt.TimeUS)
	}

	if i.replaying.Load() && msg.T >= time.Now().Add(-i.tolerance).UnixMilli() {
		i.replaying.Store(false)
		i.logger.Info("stream caught up, enabling live broadcast", "t", msg.T)
	}

	switch msg.Op {
	case jetstream.OpPost:
		if err := i.posts.Put(ctx, msg.T, msg.RKey, valueOf(msg)); err != nil {
			metrics.SkippedPosts.WithLabelValues("persist failed").Inc()
			i.logger.Error("failed to persist post", "rkey", msg.RKey, "error", err)
			return
		}
		i.recordSightings(msg.Langs)
		metrics.Posts.WithLabelValues(langs.First(msg.Langs), targetLabel(msg.Target)).Inc()

	case jetstream.OpUpdate:
		if err := i.posts.Update(ctx, msg.T, msg.RKey, valueOf(msg)); err != nil {
			metrics.SkippedPosts.WithLabelValues("persist failed").Inc()
			i.logger.Error("failed to update post", "rkey", msg.RKey, "error", err)
			return
		}
		i.recordSightings(msg.Langs)
		metrics.Posts.WithLabelValues(langs.First(msg.Langs), targetLabel(msg.Target)).Inc()

	case jetstream.OpDelete:
		i.handleDelete(ctx, msg)
	}
}

func (i *Ingester) handleDelete(ctx context.Context, msg *jetstream.Message) {
	taken, err := i.posts.Take(ctx, msg.T, msg.RKey)
	if err != nil {
		i.logger.Error("failed to take post", "rkey", msg.RKey, "error", err)
		return
	}
	if taken == nil {
		i.misses.Add(1)
		metrics.PostDeletes.WithLabelValues(langs.Untagged, langs.Untagged, "miss").Inc()
		return
	}

	i.hits.Add(1)
	target := targetLabel(jetstream.Target(taken.Value.Target))
	metrics.PostDeletes.WithLabelValues(langs.First(taken.Value.Langs), target, "hit").Inc()
	metrics.DeletedPostAge.WithLabelValues(target).Observe(float64(taken.Age) / 1000)

	// during replay the cache and tracker are kept correct, but replayed
	// deletions are history, not live events
	if i.replaying.Load() {
		return
	}

	var likeCount *uint32
	if i.likes != nil {
		likeCount = i.likes.Count(ctx, msg.DID, msg.RKey)
	}

	i.hub.Deliver(broadcast.DeletedPost{
		Text:   taken.Value.Text,
		Langs:  taken.Value.Langs,
		Target: taken.Value.Target,
		Age:    taken.Age,
		Likes:  likeCount,
	})
}

func (i *Ingester) recordSightings(codes []string) {
	if len(codes) == 0 {
		i.tracker.AddSighting(langs.Untagged)
		return
	}
	for _, l := range codes {
		i.tracker.AddSighting(l)
	}
}

// trimLoop enforces the cache bounds against the logical clock on a ticker,
// in addition to the per-mutation trims, and exports the cache depth gauge.
func (i *Ingester) trimLoop(ctx context.Context) {
	ticker := time.NewTicker(trimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := i.cursor.Load() / 1000
			if now == 0 {
				continue
			}
			if err := i.posts.Trim(ctx, now); err != nil {
				i.logger.Error("failed to trim posts", "error", err)
			}
			if oldest, ok, err := i.posts.Oldest(ctx); err != nil {
				i.logger.Error("failed to read oldest post", "error", err)
			} else if ok {
				metrics.CacheDepth.Set(float64(time.Now().UnixMilli()-oldest) / 1000)
			} else {
				metrics.CacheDepth.Set(0)
			}
		}
	}
}

func valueOf(msg *jetstream.Message) store.Value {
	return store.Value{
		Text:   msg.Text,
		Langs:  msg.Langs,
		Target: string(msg.Target),
	}
}

// targetLabel names a post's target for metric labels; a plain post is
// labelled "post".
func targetLabel(t jetstream.Target) string {
	if t == jetstream.TargetNone {
		return "post"
	}
	return string(t)
}
