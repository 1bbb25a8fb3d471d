package artwork

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// LoadResult is what a load controller delivers to its consumer. OK is false
// when no artwork is available, whether the bytes were absent, malformed, or
// the decode failed; the consumer renders a placeholder in that case.
type LoadResult struct {
	Bitmap Bitmap
	OK     bool
}

// State tracks a load controller through its lifecycle:
// Idle -> CacheCheck -> (HitDone | Decoding -> (Delivered | Cancelled | Failed)).
type State int32

const (
	StateIdle State = iota
	StateCacheCheck
	StateHitDone
	StateDecoding
	StateDelivered
	StateCancelled
	StateFailed
)

// LoadHandle is the cancellable handle for one logical thumbnail request.
// Each handle issues at most one decode request over its lifetime; a row
// that becomes visible again gets a fresh handle.
type LoadHandle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	state     atomic.Int32
	done      chan struct{}
	settleOne sync.Once
}

// Cancel marks the request as abandoned. A decode already past the gate runs
// to completion, but nothing is delivered to the consumer; the result may
// still land in the cache for other waiters on the same key.
func (h *LoadHandle) Cancel() {
	h.cancelled.Store(true)
	h.cancel()
}

// Cancelled reports whether the request was cancelled, either explicitly or
// through its parent context.
func (h *LoadHandle) Cancelled() bool {
	return h.cancelled.Load() || h.ctx.Err() != nil
}

// Done is closed once the request settled: delivered, failed, or cancelled.
func (h *LoadHandle) Done() <-chan struct{} {
	return h.done
}

// State returns the controller's current lifecycle state.
func (h *LoadHandle) State() State {
	return State(h.state.Load())
}

func (h *LoadHandle) setState(st State) {
	h.state.Store(int32(st))
}

// settle records the terminal state exactly once and closes Done.
func (h *LoadHandle) settle(st State) {
	h.settleOne.Do(func() {
		h.state.Store(int32(st))
		close(h.done)
		h.cancel()
	})
}

// FetchThumbnail resolves one thumbnail for the consumer of a visible row.
// On a cache hit the result is delivered without issuing a decode; on a miss
// a single decode request is issued, deduplicated system-wide per key. The
// deliver callback runs on the delivery executor's goroutine and is skipped
// entirely when the handle was cancelled first.
func (s *Service) FetchThumbnail(ctx context.Context, entityID string, purpose Purpose, sizeBound int, deliver func(LoadResult)) *LoadHandle {
	key := NewCacheKey(entityID, purpose, sizeBound)

	reqCtx, cancel := context.WithCancel(ctx)
	h := &LoadHandle{ctx: reqCtx, cancel: cancel, done: make(chan struct{})}
	h.setState(StateCacheCheck)

	if bmp, ok := s.cache.Get(key); ok {
		s.post(h, deliver, LoadResult{Bitmap: bmp, OK: true}, StateHitDone)
		return h
	}

	h.setState(StateDecoding)
	go s.load(h, key, deliver)
	return h
}

// load runs off the delivery goroutine: it joins (or starts) the decode
// flight for key and arranges delivery.
func (s *Service) load(h *LoadHandle, key CacheKey, deliver func(LoadResult)) {
	// Yield once before competing for a gate slot so in-progress layout
	// and composition work is not starved by decode scheduling.
	runtime.Gosched()

	if h.Cancelled() {
		h.settle(StateCancelled)
		return
	}

	f, owner := s.flights.join(key)
	if owner {
		// A flight for this key may have completed between the cache
		// check and the join; the cache settles that race.
		if bmp, ok := s.cache.Get(key); ok {
			res := flightResult{bmp: bmp, ok: true}
			s.flights.finish(key, f, res)
			s.finishLoad(h, deliver, res)
			return
		}

		// If the requester cancels while the flight is still queued and
		// no one else has joined, the flight context is cancelled and
		// the decode is dropped before consuming a slot.
		stop := context.AfterFunc(h.ctx, func() { s.flights.leave(key, f) })
		res := s.runFlight(f, key)
		stop()
		s.flights.finish(key, f, res)
		s.finishLoad(h, deliver, res)
		return
	}

	select {
	case <-f.done:
		s.finishLoad(h, deliver, f.res)
	case <-h.ctx.Done():
		s.flights.leave(key, f)
		h.settle(StateCancelled)
	}
}

// runFlight fetches the entity's encoded bytes, decodes them, and populates
// the cache on success. It runs under the flight's own context so it keeps
// going for other waiters even when the original requester cancelled.
func (s *Service) runFlight(f *flight, key CacheKey) flightResult {
	data, err := s.source.Artwork(f.ctx, key.EntityID)
	if err != nil {
		s.log.Debug().Err(err).Str("entity", key.EntityID).Msg("artwork source failed")
		return flightResult{}
	}
	if len(data) == 0 {
		return flightResult{}
	}

	bmp, ok := s.thumb.Generate(f.ctx, data, key.SizeBound)
	if !ok {
		return flightResult{}
	}

	s.cache.Put(key, bmp)
	return flightResult{bmp: bmp, ok: true}
}

// finishLoad translates a flight result into a delivery, unless the handle
// was cancelled in the meantime.
func (s *Service) finishLoad(h *LoadHandle, deliver func(LoadResult), res flightResult) {
	if h.Cancelled() {
		h.settle(StateCancelled)
		return
	}
	final := StateDelivered
	if !res.ok {
		final = StateFailed
	}
	s.post(h, deliver, LoadResult{Bitmap: res.bmp, OK: res.ok}, final)
}

// post hands the result to the delivery executor. The cancellation flag is
// re-checked on the delivery goroutine because a cancel can race the post.
func (s *Service) post(h *LoadHandle, deliver func(LoadResult), res LoadResult, final State) {
	s.exec.Post(func() {
		if h.Cancelled() {
			h.settle(StateCancelled)
			return
		}
		if deliver != nil {
			deliver(res)
		}
		h.settle(final)
	})
}
