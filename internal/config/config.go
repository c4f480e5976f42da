package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the service. Values are populated from
// command-line flags and environment variables in cmd/server.
type Config struct {
	// Hostname is the canonical public hostname. When set, requests for
	// other hosts are redirected to it. Empty allows any host.
	Hostname string

	// Port is the HTTP server port.
	Port int

	// JetstreamURL is the upstream websocket endpoint.
	JetstreamURL string

	// DBPath is the SQLite database file for the post cache. Empty selects
	// the in-memory store.
	DBPath string

	// MaxItems is the hard cap on cached posts.
	MaxItems int64

	// MaxAge is how long a post stays correlatable after creation.
	MaxAge time.Duration

	// ReplayWindow is how far back the cursor starts on a cold boot.
	ReplayWindow time.Duration

	// ReplayTolerance is how close to wall-clock now an event has to be for
	// the stream to count as caught up.
	ReplayTolerance time.Duration

	// ActivityDivisor tunes the language tracker's popularity threshold.
	ActivityDivisor int64

	// LikesURL is the like-count aggregator endpoint. Empty disables
	// like lookups.
	LikesURL string

	// Debug enables debug logging.
	Debug bool
}

// Validate checks the parts of the configuration that would otherwise fail
// in confusing ways much later.
func (c *Config) Validate() error {
	if c.JetstreamURL == "" {
		return fmt.Errorf("jetstream URL is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxItems < 1 {
		return fmt.Errorf("max-items must be positive, got %d", c.MaxItems)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max-age must be positive, got %s", c.MaxAge)
	}
	if c.ReplayWindow < 0 {
		return fmt.Errorf("replay-window must not be negative, got %s", c.ReplayWindow)
	}
	if c.ReplayTolerance <= 0 {
		return fmt.Errorf("replay-tolerance must be positive, got %s", c.ReplayTolerance)
	}
	return nil
}
