// Package broadcast fans correlated deletions out to connected subscribers,
// filtered by each subscriber's language interest.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/calbers/lastwords/internal/metrics"
)

// observersRefresh is how often the observer count is pushed to everyone
// when nothing else is happening.
const observersRefresh = 7 * time.Second

// Hub maintains the live subscriber set. Registration and interest updates
// come from independent client connections, so the set is behind a lock;
// delivery never blocks on a slow subscriber.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deleted    chan DeletedPost
}

// NewHub creates a Hub. The deleted channel is buffered so a burst of
// deletions does not stall the ingestion path; overflow is dropped.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deleted:    make(chan DeletedPost, 120),
	}
}

// Register adds a subscriber to the set.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a subscriber. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Deliver hands a correlated deletion to the hub without blocking. When the
// hub is saturated the post is dropped; there is no delivery guarantee.
func (h *Hub) Deliver(p DeletedPost) {
	select {
	case h.deleted <- p:
	default:
		h.logger.Warn("fanout channel full, dropping deleted post")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run processes subscriber lifecycle and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(observersRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.Observers.Set(float64(total))
			h.logger.Info("observer connected", "total", total)
			h.sendObservers()
			ticker.Reset(observersRefresh)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.Observers.Set(float64(total))
			h.logger.Info("observer disconnected", "total", total)
			h.sendObservers()

		case p := <-h.deleted:
			h.fanout(p)

		case <-ticker.C:
			h.sendObservers()
		}
	}
}

// fanout delivers one deleted post to every subscriber whose interest
// matches. Delivery is fire and forget: a subscriber whose send buffer is
// full is skipped.
func (h *Hub) fanout(p DeletedPost) {
	data, err := json.Marshal(postMessage{
		Type: "post",
		Post: postBody{
			Value: postValue{Text: p.Text, Langs: p.Langs, Target: p.Target},
			Age:   p.Age,
			Likes: p.Likes,
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal post message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(p.Langs) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// slow subscriber, skip this delivery
		}
	}
}

func (h *Hub) sendObservers() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(observersMessage{
		Type:      "observers",
		Observers: len(h.clients),
	})
	if err != nil {
		h.logger.Error("failed to marshal observers message", "error", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.logger.Info("closed all observers")
}
