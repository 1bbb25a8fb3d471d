package artwork

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/IH0kN3m/Petrichor/internal/ui/mainloop"
)

// ArtworkSource supplies the raw encoded artwork bytes for an entity. It is
// implemented by the external metadata layer; nil bytes with a nil error mean
// the entity simply has no artwork.
type ArtworkSource interface {
	Artwork(ctx context.Context, entityID string) ([]byte, error)
}

// Service is the facade the view layer talks to. It owns the cache, the
// decode gate, the in-flight registry, and the delivery executor, and exposes
// the three operations of the subsystem: FetchThumbnail, Preheat, and
// ConfigureCacheLimits.
type Service struct {
	log     zerolog.Logger
	source  ArtworkSource
	thumb   Thumbnailer
	cache   *Cache
	flights *flightGroup
	exec    *mainloop.Executor
	coal    *mainloop.Coalescer
	pre     *Preheater
	ownExec bool
}

type serviceOptions struct {
	log          zerolog.Logger
	thumb        Thumbnailer
	maxEntries   int
	maxTotalCost int64
	concurrency  int64
	exec         *mainloop.Executor
}

// Option configures a Service at construction time.
type Option func(*serviceOptions)

// WithLogger sets the logger for the subsystem.
func WithLogger(log zerolog.Logger) Option {
	return func(o *serviceOptions) { o.log = log }
}

// WithThumbnailer replaces the default decode pipeline.
func WithThumbnailer(t Thumbnailer) Option {
	return func(o *serviceOptions) { o.thumb = t }
}

// WithCacheLimits sets the initial eviction thresholds.
func WithCacheLimits(maxEntries int, maxTotalCostBytes int64) Option {
	return func(o *serviceOptions) {
		o.maxEntries = maxEntries
		o.maxTotalCost = maxTotalCostBytes
	}
}

// WithDecodeConcurrency sets the decode gate size.
func WithDecodeConcurrency(n int) Option {
	return func(o *serviceOptions) { o.concurrency = int64(n) }
}

// WithExecutor uses an externally owned delivery executor instead of an
// internal one. The caller keeps responsibility for closing it.
func WithExecutor(exec *mainloop.Executor) Option {
	return func(o *serviceOptions) { o.exec = exec }
}

// NewService wires the subsystem around the given artwork source.
func NewService(source ArtworkSource, opts ...Option) *Service {
	o := serviceOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		log:     o.log,
		source:  source,
		thumb:   o.thumb,
		cache:   NewCache(o.maxEntries, o.maxTotalCost),
		flights: newFlightGroup(),
		exec:    o.exec,
	}
	if s.thumb == nil {
		s.thumb = NewGenerator(o.concurrency, o.log)
	}
	if s.exec == nil {
		s.exec = mainloop.NewExecutor()
		s.ownExec = true
	}
	s.coal = mainloop.NewCoalescer(s.exec.Post)
	s.pre = newPreheater(s, int(o.concurrency))
	return s
}

// Preheat is the fire-and-forget batch hint: entities about to be displayed
// are decoded ahead of time. Bursts of hints for the same purpose coalesce
// into the latest batch.
func (s *Service) Preheat(ctx context.Context, entityIDs []string, purpose Purpose, sizeBound int) {
	ids := make([]string, len(entityIDs))
	copy(ids, entityIDs)

	s.coal.Post("preheat|"+string(purpose), func() {
		go s.pre.Warm(ctx, ids, purpose, sizeBound)
	})
}

// ConfigureCacheLimits adjusts the two eviction thresholds. Occupancy above
// the new limits is evicted eagerly.
func (s *Service) ConfigureCacheLimits(maxEntries int, maxTotalCostBytes int64) {
	s.log.Debug().
		Int("max_entries", maxEntries).
		Int64("max_total_cost", maxTotalCostBytes).
		Msg("cache limits reconfigured")
	s.cache.SetLimits(maxEntries, maxTotalCostBytes)
}

// Purge empties the cache in response to an external memory-pressure signal
// and resets the preheater so purged entries can be warmed again.
func (s *Service) Purge() {
	s.cache.Purge()
	s.pre.ForgetAll()
}

// Stats reports current cache occupancy.
func (s *Service) Stats() (entries int, totalCost int64) {
	return s.cache.Len(), s.cache.TotalCost()
}

// Close stops the coalescer and, when owned, the delivery executor. Pending
// deliveries drain first.
func (s *Service) Close() {
	s.coal.Close()
	if s.ownExec {
		s.exec.Close()
	}
}
