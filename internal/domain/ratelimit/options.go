package ratelimit

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option applies a configuration option to the in-memory counter.
type Option func(*inMemoryCounter)

// WithLimit sets the number of requests allowed per window. <= 0 disables limiting.
func WithLimit(n int) Option {
	return func(c *inMemoryCounter) {
		c.limit = n
	}
}

// WithWindow sets the fixed window length.
func WithWindow(d time.Duration) Option {
	return func(c *inMemoryCounter) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithMaxKeys bounds the number of tracked keys. <= 0 is unbounded.
func WithMaxKeys(n int) Option {
	return func(c *inMemoryCounter) {
		c.maxKeys = n
	}
}

// WithClock injects the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(c *inMemoryCounter) {
		if clock != nil {
			c.clock = clock
		}
	}
}
