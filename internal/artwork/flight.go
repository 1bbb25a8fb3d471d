package artwork

import (
	"context"
	"sync"
)

// flightResult is the outcome of one decode flight, shared by every
// requester that joined it.
type flightResult struct {
	bmp Bitmap
	ok  bool
}

// flight is a single in-progress decode for one key. All requesters for the
// key attach to the same flight so the key is decoded at most once
// system-wide at any instant. The flight's context is cancelled only when
// every requester has given up, which aborts a decode still queued on the
// gate without consuming a slot.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	res    flightResult

	waiters int // guarded by the owning group's mu
}

// flightGroup tracks the in-flight decode per key. It is what the preheater
// consults to avoid duplicating work already requested by a row's own
// load controller, and vice versa.
type flightGroup struct {
	mu      sync.Mutex
	flights map[CacheKey]*flight
}

func newFlightGroup() *flightGroup {
	return &flightGroup{flights: make(map[CacheKey]*flight)}
}

// join attaches to the flight for key, creating it when absent. The creator
// is the owner and must run the decode and call finish; everyone else waits
// on f.done or detaches with leave. A flight whose context was already
// cancelled counts as absent: its only possible outcome is the aborted one,
// which must not leak to a live requester, so it is retired here and a fresh
// flight takes its slot.
func (g *flightGroup) join(key CacheKey) (f *flight, owner bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok && f.ctx.Err() == nil {
		f.waiters++
		return f, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	f = &flight{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		waiters: 1,
	}
	g.flights[key] = f
	return f, true
}

// leave detaches one requester. When the last requester leaves before the
// flight finished, the flight's context is cancelled so a queued decode is
// dropped cheaply. The cancel happens under the lock so a join landing in
// the same instant cannot re-increment waiters and still see the cancel fire.
func (g *flightGroup) leave(key CacheKey, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f.waiters--
	if f.waiters <= 0 && g.flights[key] == f {
		f.cancel()
	}
}

// finish publishes the result, wakes all waiters, and retires the flight so
// a later request for the same key starts fresh.
func (g *flightGroup) finish(key CacheKey, f *flight, res flightResult) {
	g.mu.Lock()
	if g.flights[key] == f {
		delete(g.flights, key)
	}
	g.mu.Unlock()

	f.res = res
	close(f.done)
	f.cancel()
}

// inFlight reports whether a decode for key is currently underway.
func (g *flightGroup) inFlight(key CacheKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.flights[key]
	return ok
}
