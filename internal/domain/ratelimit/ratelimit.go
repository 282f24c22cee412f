// Package ratelimit defines the per-client request counting abstraction.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Usage describes the caller's position inside the current window.
type Usage struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left until the window resets, never negative.
func (u Usage) RetryAfter(now time.Time) time.Duration {
	if d := u.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Counter decides whether a keyed request may proceed.
type Counter interface {
	// Allow counts one request for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, Usage)

	// Size returns the number of tracked keys.
	Size() int64
}

// node is one tracked key in insertion order.
type node struct {
	key         string
	windowStart time.Time
	count       int
	prev, next  *node
}

func (n *node) reset() {
	*n = node{}
}

// inMemoryCounter is a fixed-window counter per key. When more than
// maxKeys keys are tracked the oldest-inserted key is evicted.
type inMemoryCounter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	limit    int
	window   time.Duration
	maxKeys  int
	keys     map[string]*node
	head     *node // newest
	tail     *node // oldest
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryCounter creates a Counter with configuration options.
// A limit <= 0 disables limiting.
func NewInMemoryCounter(opts ...Option) Counter {
	c := &inMemoryCounter{
		clock:   clockwork.NewRealClock(),
		limit:   30,
		window:  time.Minute,
		maxKeys: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keys = make(map[string]*node)
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return c
}

// Allow implements Counter.
func (c *inMemoryCounter) Allow(_ context.Context, key string) (bool, Usage) {
	now := c.clock.Now()
	if c.limit <= 0 {
		return true, Usage{Limit: 0, Remaining: 0, ResetAt: now}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.keys[key]
	if !ok {
		if c.maxKeys > 0 && len(c.keys) >= c.maxKeys {
			c.evictOldest()
		}
		n = c.nodePool.Get().(*node)
		n.key = key
		n.windowStart = now
		c.pushFront(n)
		c.keys[key] = n
		c.size.Add(1)
	}

	if now.Sub(n.windowStart) >= c.window {
		n.windowStart = now
		n.count = 0
	}

	u := Usage{Limit: c.limit, ResetAt: n.windowStart.Add(c.window)}
	if n.count >= c.limit {
		return false, u
	}
	n.count++
	u.Remaining = c.limit - n.count
	return true, u
}

// Size implements Counter.
func (c *inMemoryCounter) Size() int64 {
	return c.size.Load()
}

// pushFront must be called with c.mu held.
func (c *inMemoryCounter) pushFront(n *node) {
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// evictOldest must be called with c.mu held.
func (c *inMemoryCounter) evictOldest() {
	n := c.tail
	if n == nil {
		return
	}
	c.tail = n.prev
	if c.tail != nil {
		c.tail.next = nil
	} else {
		c.head = nil
	}
	delete(c.keys, n.key)
	n.reset()
	c.nodePool.Put(n)
	c.size.Add(-1)
}
