/*
Package redisclient wraps the small slice of go-redis/v9 this module
actually needs: a pub/sub publisher for the optional alert fan-out (spec
§6.1). It never carries pool or health state — only the one-way alert
feed, keeping it clear of the "no distributed coordination" non-goal.
*/
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a thin wrapper over *redis.Client scoped to publishing.
type Client struct {
	rdb *redis.Client
}

// New builds a Client from a redis:// URL. Returns an error if the URL
// cannot be parsed.
func New(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisclient: invalid redis URL: %w", err)
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity with a bounded timeout.
func (c *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Publish sends payload on channel with a bounded timeout so a stalled
// Redis connection never blocks the alert monitor's tick.
func (c *Client) Publish(channel string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
