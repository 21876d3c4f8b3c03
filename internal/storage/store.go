// Package storage defines the volatile-state store shared by the auth and
// push services. Implementations: redis.Client, memory.Client (for -dev
// without Redis).
package storage

import (
	"context"
	"errors"
)

// ErrTooManySubscriptions is returned when a user already holds the maximum
// number of stored push subscriptions.
var ErrTooManySubscriptions = errors.New("too many push subscriptions")

type Store interface {
	// CheckAuthThrottle counts a signin/reset attempt for the username and
	// reports whether it is still within the window. Over the limit maps to
	// HTTP 429.
	CheckAuthThrottle(ctx context.Context, username string) (allowed bool, err error)

	// AddSubscription stores a browser push subscription (JSON) keyed by its
	// endpoint. Re-subscribing with the same endpoint overwrites.
	AddSubscription(ctx context.Context, userID, endpoint, data string) error
	// Subscriptions returns the stored subscription JSON blobs for a user.
	Subscriptions(ctx context.Context, userID string) ([]string, error)
	// RemoveSubscription drops one endpoint; unknown endpoints are a no-op.
	RemoveSubscription(ctx context.Context, userID, endpoint string) error

	Close() error
}
