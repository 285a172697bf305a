package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/depthmirror/depthmirror/internal/feed"
)

// RESTClient fetches order book snapshots over HTTP, rate-limited against
// the venue's published REST budget.
type RESTClient struct {
	http   *resty.Client
	rl     *TokenBucket
	logger *slog.Logger
}

// NewRESTClient creates a snapshot-fetching client against baseURL.
func NewRESTClient(baseURL string, logger *slog.Logger) *RESTClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &RESTClient{
		http:   httpClient,
		rl:     NewTokenBucket(150, 15),
		logger: logger.With("component", "venue_rest"),
	}
}

// Snapshot fetches the current order book snapshot for symbol at the given
// depth limit.
func (c *RESTClient) Snapshot(ctx context.Context, symbol string, limit int) (feed.SnapshotMsg, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return feed.SnapshotMsg{}, fmt.Errorf("snapshot rate limit: %w", err)
	}

	var result feed.SnapshotMsg
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&result).
		Get("/fapi/v1/depth")
	if err != nil {
		return feed.SnapshotMsg{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return feed.SnapshotMsg{}, fmt.Errorf("fetch snapshot: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !feed.IsValidSnapshot(result) {
		return feed.SnapshotMsg{}, fmt.Errorf("fetch snapshot: malformed response for %s", symbol)
	}
	return result, nil
}
