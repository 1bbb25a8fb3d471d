package mainloop

import "sync"

// Coalescer merges bursts of same-key tasks: when several tasks for one key
// are posted before the underlying queue gets to them, only the latest runs.
// The artwork service uses it so a storm of list-refresh events collapses
// into a single preheat pass per purpose.
type Coalescer struct {
	mu        sync.Mutex
	pending   map[string]bool
	callbacks map[string]func()
	post      func(func())
	closed    bool
}

// NewCoalescer creates a coalescer that schedules execution through post,
// typically an Executor's Post method.
func NewCoalescer(post func(func())) *Coalescer {
	if post == nil {
		panic("mainloop.NewCoalescer: post function cannot be nil")
	}
	return &Coalescer{
		pending:   make(map[string]bool),
		callbacks: make(map[string]func()),
		post:      post,
	}
}

// Post schedules fn under key. A later Post for the same key before execution
// replaces fn; only one execution is queued per key at a time.
func (c *Coalescer) Post(key string, fn func()) {
	if fn == nil || key == "" {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.callbacks[key] = fn
	if c.pending[key] {
		c.mu.Unlock()
		return
	}
	c.pending[key] = true
	post := c.post
	c.mu.Unlock()

	post(func() {
		c.mu.Lock()
		if c.closed {
			delete(c.pending, key)
			delete(c.callbacks, key)
			c.mu.Unlock()
			return
		}
		fn := c.callbacks[key]
		delete(c.pending, key)
		delete(c.callbacks, key)
		c.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Close drops all pending tasks and rejects future posts.
func (c *Coalescer) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = map[string]bool{}
	c.callbacks = map[string]func(){}
	c.mu.Unlock()
}
