// Package likes fetches like counts for deleted posts from a link
// aggregator. The lookup is best effort; any failure just means the post is
// delivered without a count.
package likes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/calbers/lastwords/internal/metrics"
)

// requestTimeout bounds how long a delete can stall the ingestion path on
// the aggregator. Past this the post ships with no like count.
const requestTimeout = 240 * time.Millisecond

// Client queries the aggregator's /likes endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a likes client for the given aggregator base URL
// (e.g. https://aggregator.example.com/likes).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

type likesResult struct {
	Likes uint32 `json:"total_likes"`
}

// Count returns the like count for the post identified by did and rkey, or
// nil if the aggregator could not be reached in time. Failures are counted
// in metrics, never surfaced as errors.
func (c *Client) Count(ctx context.Context, did, rkey string) *uint32 {
	targetURI := "at://" + did + "/app.bsky.feed.post/" + rkey

	query := url.Values{}
	query.Set("uri", targetURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		metrics.LikeRequestFails.WithLabelValues("request build").Inc()
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
			metrics.LikeRequestFails.WithLabelValues("request timeout").Inc()
		} else {
			metrics.LikeRequestFails.WithLabelValues("request error").Inc()
		}
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.LikeRequestFails.WithLabelValues(fmt.Sprintf("http %d", resp.StatusCode)).Inc()
		return nil
	}

	var result likesResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.LikeRequestFails.WithLabelValues("json decode").Inc()
		return nil
	}

	return &result.Likes
}
