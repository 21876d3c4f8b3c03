// Package memory is the in-process storage.Store used under -dev so the
// stack runs without Redis. Throttle windows are approximated with a reset
// timestamp; subscriptions never expire.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/echowave/internal/storage"
)

const (
	authThrottleWindow = 10 * time.Minute
	authThrottleMax    = 10
	maxSubscriptions   = 10
)

type window struct {
	count   int
	resetAt time.Time
}

type Client struct {
	mu        sync.Mutex
	throttles map[string]*window
	subs      map[string]map[string]string
}

func New() *Client {
	return &Client{
		throttles: make(map[string]*window),
		subs:      make(map[string]map[string]string),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) CheckAuthThrottle(_ context.Context, username string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.throttles[username]
	if !ok || time.Now().After(w.resetAt) {
		w = &window{resetAt: time.Now().Add(authThrottleWindow)}
		c.throttles[username] = w
	}
	w.count++
	return w.count <= authThrottleMax, nil
}

func (c *Client) AddSubscription(_ context.Context, userID, endpoint, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[userID] == nil {
		c.subs[userID] = make(map[string]string)
	}
	if _, ok := c.subs[userID][endpoint]; !ok && len(c.subs[userID]) >= maxSubscriptions {
		return storage.ErrTooManySubscriptions
	}
	c.subs[userID][endpoint] = data
	return nil
}

func (c *Client) Subscriptions(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs[userID]))
	for _, data := range c.subs[userID] {
		out = append(out, data)
	}
	return out, nil
}

func (c *Client) RemoveSubscription(_ context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs[userID], endpoint)
	return nil
}
