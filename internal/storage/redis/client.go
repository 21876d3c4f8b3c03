package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echowave/internal/storage"
)

const (
	// Auth throttle: 10 attempts per 10 minutes per username.
	authThrottleWindow = 600 * time.Second
	authThrottleMax    = 10

	// Push subscriptions expire if the user never posts again.
	subscriptionTTL = 30 * 24 * time.Hour
	// One device per browser profile; more than this is stale endpoints.
	maxSubscriptions = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) CheckAuthThrottle(ctx context.Context, username string) (bool, error) {
	key := "auth_limit:" + username
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, authThrottleWindow)
	}
	return n <= int64(authThrottleMax), nil
}

func (c *Client) AddSubscription(ctx context.Context, userID, endpoint, data string) error {
	key := "push_subs:" + userID
	if exists, err := c.cli.HExists(ctx, key, endpoint).Result(); err != nil {
		return err
	} else if !exists {
		n, err := c.cli.HLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if n >= maxSubscriptions {
			return storage.ErrTooManySubscriptions
		}
	}
	if err := c.cli.HSet(ctx, key, endpoint, data).Err(); err != nil {
		return err
	}
	return c.cli.Expire(ctx, key, subscriptionTTL).Err()
}

func (c *Client) Subscriptions(ctx context.Context, userID string) ([]string, error) {
	vals, err := c.cli.HVals(ctx, "push_subs:"+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return vals, err
}

func (c *Client) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	return c.cli.HDel(ctx, "push_subs:"+userID, endpoint).Err()
}
