package artwork

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Preheater speculatively decodes artwork for entities that are about to
// become visible, so that by the time a row scrolls into view its thumbnail
// is already cached. It remembers the entity set it last saw per purpose and
// only issues work for additions: reordering or re-rendering of known items
// never re-triggers decoding.
type Preheater struct {
	svc     *Service
	workers int

	mu    sync.Mutex
	known map[Purpose]map[string]struct{}
}

func newPreheater(svc *Service, workers int) *Preheater {
	if workers <= 0 {
		workers = DefaultDecodeConcurrency
	}
	return &Preheater{
		svc:     svc,
		workers: workers,
		known:   make(map[Purpose]map[string]struct{}),
	}
}

// Warm decodes thumbnails for every entity in ids not already cached and not
// already the subject of an in-flight decode, then blocks until the batch is
// done. Callers wanting fire-and-forget semantics go through Service.Preheat.
func (p *Preheater) Warm(ctx context.Context, ids []string, purpose Purpose, sizeBound int) {
	added := p.additions(purpose, ids)
	if len(added) == 0 {
		return
	}

	p.svc.log.Debug().
		Int("batch", len(ids)).
		Int("new", len(added)).
		Str("purpose", string(purpose)).
		Msg("preheating artwork")

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, id := range added {
		key := NewCacheKey(id, purpose, sizeBound)
		g.Go(func() error {
			p.warm(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
}

// additions diffs ids against the last seen set for purpose and replaces it,
// so removed entities are forgotten and re-trigger preheating if they return.
func (p *Preheater) additions(purpose Purpose, ids []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.known[purpose]
	next := make(map[string]struct{}, len(ids))
	var added []string
	for _, id := range ids {
		if _, dup := next[id]; dup {
			continue
		}
		next[id] = struct{}{}
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	p.known[purpose] = next
	return added
}

// warm decodes one key unless it is already cached or in flight elsewhere.
// Preheat work never preempts a visible row's own request: it yields before
// touching the gate and backs off when any other requester owns the flight.
func (p *Preheater) warm(ctx context.Context, key CacheKey) {
	runtime.Gosched()

	if ctx.Err() != nil {
		return
	}
	if p.svc.cache.Contains(key) {
		return
	}

	f, owner := p.svc.flights.join(key)
	if !owner {
		// A load controller (or another preheat worker) already wants
		// this key; its result will land in the cache.
		p.svc.flights.leave(key, f)
		return
	}
	if bmp, ok := p.svc.cache.Get(key); ok {
		p.svc.flights.finish(key, f, flightResult{bmp: bmp, ok: true})
		return
	}

	stop := context.AfterFunc(ctx, func() { p.svc.flights.leave(key, f) })
	res := p.svc.runFlight(f, key)
	stop()
	p.svc.flights.finish(key, f, res)
}

// Forget drops the remembered entity set for purpose, forcing the next Warm
// to treat the whole batch as new.
func (p *Preheater) Forget(purpose Purpose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.known, purpose)
}

// ForgetAll resets all remembered entity sets. Used after a cache purge so
// purged thumbnails can be warmed again.
func (p *Preheater) ForgetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known = make(map[Purpose]map[string]struct{})
}
